package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// termMu keeps the status line and log writes from interleaving.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner(listen string) {
	banner := `
  ______  ______  _____  _____ ____  ____  ______
 / ____/ |/ / __ \/ ___// ___/ __ \/ __ \/ ____/
/ __/  |   / / / /\__ \/ /  / / / / /_/ / __/
/ /___ /   / /_/ /___/ / /__/ /_/ / ____/ /___
/_____//_/|_\____//____/\___/\____/_/   /_____/

        >> exoplanet archive assistant <<
`

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
	if listen != "" {
		fmt.Printf("%slistening on %s%s\n\n", colorPurple, listen, colorReset)
	}
}

// PrintLiveStatus prints a one-line summary of request counters and memory.
func PrintLiveStatus() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s := GetStatus()

	pulse := "HEALTHY"
	pulseColor := colorNeonCyan
	if time.Since(s.LastHeartbeat) > 90*time.Second {
		pulse = "LAGGING"
		pulseColor = colorNeonMag
	}

	last := s.LastRequest
	if len(last) > 25 {
		last = last[:22] + "..."
	}

	line := fmt.Sprintf("%s[%s] %s%-7s%s | %-7s | active %d | served %d | failed %d | %s | %v | %.1fMB\n",
		colorReset,
		s.LastHeartbeat.Format("15:04:05"),
		pulseColor, pulse, colorReset,
		s.State, s.Active, s.Served, s.Failed,
		last, s.Uptime,
		float64(m.Alloc)/1024/1024,
	)

	termMu.Lock()
	fmt.Print(line)
	termMu.Unlock()
}
