package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rahul/exoscope/internal/plan"
)

const DefaultSnapshotTimeout = 15 * time.Second

const snapshotPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>body{margin:0;background:#fff}</style></head>
<body>%s</body></html>`

// SnapshotRenderer renders a Plotly figure in headless Chrome and saves a PNG of it.
// Chat gateways use it since they cannot display interactive figures.
type SnapshotRenderer struct {
	Plotly    *PlotlyRenderer
	OutputDir string
	Timeout   time.Duration

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewSnapshotRenderer(outputDir string, timeout time.Duration) *SnapshotRenderer {
	if timeout <= 0 {
		timeout = DefaultSnapshotTimeout
	}
	return &SnapshotRenderer{
		Plotly:    NewPlotlyRenderer(),
		OutputDir: outputDir,
		Timeout:   timeout,
	}
}

func (s *SnapshotRenderer) initBrowser() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browserCtx != nil {
		select {
		case <-s.browserCtx.Done():
			s.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(1000, 640),
	)

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)

	return chromedp.Run(s.browserCtx)
}

func (s *SnapshotRenderer) cleanup() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.allocCtx = nil
}

// Close shuts down the headless browser, if one was started.
func (s *SnapshotRenderer) Close() {
	s.mu.Lock()
	s.cleanup()
	s.mu.Unlock()
}

func (s *SnapshotRenderer) Render(ctx context.Context, spec plan.ChartSpec, frame Frame) (*Artifact, error) {
	art, err := s.Plotly.Render(ctx, spec, frame)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	name := "plot_" + uuid.NewString()
	htmlPath, err := filepath.Abs(filepath.Join(s.OutputDir, name+".html"))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(htmlPath, []byte(fmt.Sprintf(snapshotPage, art.HTML)), 0644); err != nil {
		return nil, fmt.Errorf("write plot page: %w", err)
	}
	defer os.Remove(htmlPath)

	if err := s.initBrowser(); err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()
	actionCtx, cancel := context.WithTimeout(tabCtx, s.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var buf []byte
	err = chromedp.Run(actionCtx,
		chromedp.Navigate("file://"+htmlPath),
		chromedp.WaitVisible(".exoscope-plot .main-svg", chromedp.ByQuery),
		chromedp.Screenshot(".exoscope-plot", &buf, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot failed: %w", err)
	}

	pngPath := filepath.Join(s.OutputDir, name+".png")
	if err := os.WriteFile(pngPath, buf, 0644); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	art.Kind = KindPNG
	art.ImagePath = pngPath
	return art, nil
}
