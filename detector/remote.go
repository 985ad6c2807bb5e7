package detector

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// RemoteConfig is the configuration surface of a remote inference service
type RemoteConfig struct {
	// URL is the base address of the service, eg: http://localhost:8000
	URL string
	// ConfThreshold drops detections scoring below it
	ConfThreshold float32
	// ImageSize is the square inference resolution
	ImageSize int
	// MaxDetections caps the detections returned per image
	MaxDetections int
	// Tracker selects the service side tracking algorithm, empty for none
	Tracker string
	// Timeout bounds each request
	Timeout time.Duration
	// LabelsFile overrides the class names reported by the service
	LabelsFile string
}

// modelInfo is the response of the model metadata endpoint
type modelInfo struct {
	Names []string `json:"names"`
	Task  string   `json:"task"`
}

// remoteDetection is a single detection as encoded by the service
type remoteDetection struct {
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
	Confidence float32    `json:"confidence"`
	TrackID    *int       `json:"track_id"`
	Box        [4]float32 `json:"box"`
}

// detectResponse is the response of the detect endpoint
type detectResponse struct {
	Results []struct {
		Detections []remoteDetection `json:"detections"`
	} `json:"results"`
}

// Remote is a Detector backed by an HTTP inference service.  Images are sent
// JPEG encoded in a single multipart request per batch.
type Remote struct {
	cfg    RemoteConfig
	client *resty.Client
	labels []string
	log    *zap.Logger
}

// NewRemote returns a client for the inference service.  Init must be called
// before Detect.
func NewRemote(cfg RemoteConfig, log *zap.Logger) *Remote {

	if log == nil {
		log = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Remote{
		cfg:    cfg,
		client: client,
		log:    log,
	}
}

// Init fetches the model metadata from the service.  A failure here means the
// detection capability is unusable.
func (r *Remote) Init(ctx context.Context) error {

	var info modelInfo

	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/v1/model")

	if err != nil {
		return fmt.Errorf("failed to query model: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("model query returned status %d", resp.StatusCode())
	}

	r.labels = info.Names

	if r.cfg.LabelsFile != "" {
		labels, err := LoadLabels(r.cfg.LabelsFile)

		if err != nil {
			return fmt.Errorf("failed to load labels: %w", err)
		}

		r.labels = labels
	}

	r.log.Info("Detector model loaded",
		zap.String("url", r.cfg.URL),
		zap.String("task", info.Task),
		zap.Int("classes", len(r.labels)),
	)

	return nil
}

// Labels returns the class names known to the detector
func (r *Remote) Labels() []string {
	return r.labels
}

// Detect sends the batch to the service and decodes its detections
func (r *Remote) Detect(ctx context.Context, batch *Batch) ([][]Detection, error) {

	if batch.Len() == 0 {
		return nil, nil
	}

	req := r.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"conf":    strconv.FormatFloat(float64(r.cfg.ConfThreshold), 'f', -1, 32),
			"imgsz":   strconv.Itoa(r.cfg.ImageSize),
			"max_det": strconv.Itoa(r.cfg.MaxDetections),
			"tracker": r.cfg.Tracker,
		})

	for i, e := range batch.Entries() {

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, e.Image)

		if err != nil {
			return nil, fmt.Errorf("error encoding image %d: %w", i, err)
		}

		data := bytes.Clone(buf.GetBytes())
		buf.Close()

		req.SetFileReader("images", fmt.Sprintf("junction_%d.jpg", e.Index),
			bytes.NewReader(data))
	}

	var out detectResponse

	resp, err := req.SetResult(&out).Post("/v1/detect")

	if err != nil {
		return nil, fmt.Errorf("detect request failed: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("detect returned status %d", resp.StatusCode())
	}

	if len(out.Results) != batch.Len() {
		return nil, fmt.Errorf("detect returned %d results for %d images",
			len(out.Results), batch.Len())
	}

	dets := make([][]Detection, len(out.Results))

	for i, res := range out.Results {
		dets[i] = r.convert(res.Detections)
	}

	return dets, nil
}

// convert filters and maps the service detections of one image
func (r *Remote) convert(in []remoteDetection) []Detection {

	out := make([]Detection, 0, len(in))

	for _, d := range in {

		if d.Confidence < r.cfg.ConfThreshold {
			continue
		}

		if r.cfg.MaxDetections > 0 && len(out) >= r.cfg.MaxDetections {
			break
		}

		det := Detection{
			ClassID:    d.ClassID,
			ClassName:  d.ClassName,
			Confidence: d.Confidence,
			TrackID:    NoTrackID,
			Box: Box{
				X1: d.Box[0],
				Y1: d.Box[1],
				X2: d.Box[2],
				Y2: d.Box[3],
			},
		}

		if d.TrackID != nil {
			det.TrackID = *d.TrackID
		}

		if det.ClassName == "" && d.ClassID >= 0 && d.ClassID < len(r.labels) {
			det.ClassName = r.labels[d.ClassID]
		}

		out = append(out, det)
	}

	return out
}
