package detections

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/shelfwatch/shelfwatch/models"
)

const runtimeID = "onnx-cpu"

// Options configures a Manager.
type Options struct {
	PoolSize   int           // number of inference workers; 0 = DefaultPoolSize
	Session    SessionConfig // backend tuning; zero value = DefaultSessionConfig
	ClassNames []string      // ordered class names; nil = single "objects" class
}

// Manager owns the loaded backend handle and the worker pool that serializes
// access to the CPU. It is constructed once at startup and shared read-only
// by every request handler afterward.
type Manager struct {
	log     *logrus.Logger
	opts    Options
	session *backendSession
	loaded  atomic.Bool

	classNames []string

	tasks   chan *task
	workers sync.WaitGroup

	// Per-request tensor buffers with exclusive checkout. Two requests in
	// flight on different workers must never share a canvas.
	buffers sync.Pool
}

type task struct {
	img        image.Image
	targetSize int
	confThresh float32
	reply      chan taskResult
}

type taskResult struct {
	detections []models.Detection
	err        error
}

// NewManager creates an unloaded Manager. Call Load before serving.
func NewManager(log *logrus.Logger, opts Options) *Manager {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.Session == (SessionConfig{}) {
		opts.Session = DefaultSessionConfig()
	}
	classNames := opts.ClassNames
	if len(classNames) == 0 {
		classNames = []string{"objects"}
	}
	return &Manager{
		log:        log,
		opts:       opts,
		classNames: classNames,
	}
}

// Load opens the weights artifact and starts the worker pool. A failure here
// is fatal for serving: IsLoaded stays false and every Detect call reports
// not-ready.
func (m *Manager) Load(weightsPath string) error {
	session, err := openSession(weightsPath, m.opts.Session)
	if err != nil {
		return NewLoadError("load model", err)
	}
	m.session = session

	m.tasks = make(chan *task)
	m.workers.Add(m.opts.PoolSize)
	for i := 0; i < m.opts.PoolSize; i++ {
		go m.worker()
	}

	m.loaded.Store(true)

	m.log.WithFields(logrus.Fields{
		"weights":          weightsPath,
		"input":            session.inputName,
		"input_size":       session.inputSize,
		"workers":          m.opts.PoolSize,
		"intra_op_threads": m.opts.Session.IntraOpThreads,
		"inter_op_threads": m.opts.Session.InterOpThreads,
	}).Info("model loaded")

	return nil
}

// IsLoaded reports whether Load has completed successfully.
func (m *Manager) IsLoaded() bool {
	return m.loaded.Load()
}

// Runtime identifies the active inference backend.
func (m *Manager) Runtime() string {
	if !m.loaded.Load() {
		return "none"
	}
	return runtimeID
}

// InputSize returns the square input size declared by the model, or 0 when
// the model input is dynamic.
func (m *Manager) InputSize() int {
	if m.session == nil {
		return 0
	}
	return m.session.inputSize
}

// ClassNames returns the ordered class names served by the model.
func (m *Manager) ClassNames() []string {
	return m.classNames
}

// Warmup runs one synthetic inference over a uniform mid-gray canvas to
// force lazy backend initialization before the first real request. Its
// output is discarded.
func (m *Manager) Warmup(size int) error {
	if !m.loaded.Load() {
		return NewNotReadyError()
	}

	gray := image.NewNRGBA(image.Rect(0, 0, size, size))
	fill := color.NRGBA{R: PadValue, G: PadValue, B: PadValue, A: 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			gray.SetNRGBA(x, y, fill)
		}
	}

	start := time.Now()
	if _, err := m.Detect(context.Background(), gray, size, WarmupConfThreshold); err != nil {
		return err
	}
	m.log.WithField("took", time.Since(start).Round(time.Millisecond)).Info("model warmed up")
	return nil
}

// Detect runs the preprocess → infer → postprocess unit of work for one
// image and returns detections in original image coordinates, ordered by
// descending confidence.
//
// Submission blocks while all workers are busy; ctx only bounds that wait.
// Once dispatched, the unit of work always runs to completion.
func (m *Manager) Detect(ctx context.Context, img image.Image, targetSize int, confThreshold float32) ([]models.Detection, error) {
	if !m.loaded.Load() {
		return nil, NewNotReadyError()
	}
	if targetSize <= 0 {
		targetSize = DefaultInputSize
	}

	t := &task{
		img:        img,
		targetSize: targetSize,
		confThresh: confThreshold,
		reply:      make(chan taskResult, 1),
	}

	select {
	case m.tasks <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r := <-t.reply
	return r.detections, r.err
}

// Close drains the worker pool and releases the backend handle. In-flight
// work is allowed to finish; no new work is accepted.
func (m *Manager) Close() {
	if !m.loaded.CompareAndSwap(true, false) {
		return
	}
	close(m.tasks)
	m.workers.Wait()
	m.session.destroy()
}

func (m *Manager) worker() {
	defer m.workers.Done()
	for t := range m.tasks {
		detections, err := m.runTask(t)
		if err != nil {
			err = NewInferenceError(err)
		}
		t.reply <- taskResult{detections: detections, err: err}
	}
}

// runTask executes one unit of work on a worker goroutine. Errors are
// classified by the caller; here they keep their cause for logging.
func (m *Manager) runTask(t *task) ([]models.Detection, error) {
	var timings models.StageTimings
	total := time.Now()

	buf := m.checkoutBuffer(t.targetSize)
	defer m.buffers.Put(buf)

	start := time.Now()
	transform := Preprocess(t.img, t.targetSize, buf)
	timings.Preprocess = time.Since(start)

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(t.targetSize), int64(t.targetSize)), buf)
	if err != nil {
		return nil, err
	}
	defer input.Destroy()

	start = time.Now()
	output, err := m.session.run(input)
	if err != nil {
		return nil, err
	}
	defer output.Destroy()
	timings.Inference = time.Since(start)

	bounds := t.img.Bounds()
	start = time.Now()
	detections, err := Postprocess(
		output.GetData(), output.GetShape(),
		t.confThresh, bounds.Dx(), bounds.Dy(),
		transform, m.classNames[0],
	)
	if err != nil {
		return nil, err
	}
	timings.Postprocess = time.Since(start)
	timings.Total = time.Since(total)

	m.log.WithFields(logrus.Fields{
		"preprocess":  timings.Preprocess,
		"inference":   timings.Inference,
		"postprocess": timings.Postprocess,
		"total":       timings.Total,
		"detections":  len(detections),
	}).Debug("pipeline timings")

	return detections, nil
}

// checkoutBuffer draws a tensor buffer from the pool, resizing when the
// target size changed since the buffer was pooled.
func (m *Manager) checkoutBuffer(size int) []float32 {
	need := 3 * size * size
	if v := m.buffers.Get(); v != nil {
		buf := v.([]float32)
		if len(buf) == need {
			return buf
		}
	}
	return make([]float32, need)
}
