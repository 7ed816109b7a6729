package detections

const (
	// DefaultInputSize is the square tensor size used when the model does not
	// declare a static input shape.
	DefaultInputSize = 640

	// DefaultConfThreshold keeps boxes whose class confidence is at or above
	// this value. Dense shelf scenes need a fairly permissive default.
	DefaultConfThreshold = 0.25

	// NmsIouThreshold is the overlap above which the lower-confidence of two
	// boxes is suppressed.
	NmsIouThreshold = 0.45

	// PadValue is the mid-gray fill used for letterbox margins, matching the
	// value the model was trained with.
	PadValue = 114

	// MaxImageBytes caps the accepted payload size (10 MiB).
	MaxImageBytes = 10 << 20

	// DefaultPoolSize bounds concurrent inference. Kept small on purpose:
	// the backend parallelizes internally, so more workers would only
	// oversubscribe the same cores.
	DefaultPoolSize = 2

	// WarmupConfThreshold is used for the synthetic warmup pass so that its
	// output is guaranteed to be discarded.
	WarmupConfThreshold = 0.99
)
