package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/room4-2/callpulse/client"
	"github.com/room4-2/callpulse/messages"
)

const help = `Commands:
  <text>             send a line as yourself
  /customer <text>   simulate a customer line (agent only)
  /analyze           request an analysis (agent only)
  /live              toggle live mode (agent only)
  /clear             clear the conversation (agent only)
  /connect           reconnect after a disconnect
  /state             print the current state
  /quit              exit`

// printer renders state changes incrementally
type printer struct {
	mu        sync.Mutex
	shown     int
	analysis  *messages.Analysis
	lastLog   time.Time
	connected bool
}

func (p *printer) update(s client.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(s.Transcript) < p.shown {
		fmt.Println("🧹 Transcript cleared")
		p.shown = 0
	}
	for _, m := range s.Transcript[p.shown:] {
		fmt.Printf("💬 %s: %s\n", m.Role, m.Text)
	}
	p.shown = len(s.Transcript)

	// the log is a bounded ring, so track position by time
	for _, entry := range s.Logs {
		if !entry.Timestamp.After(p.lastLog) {
			continue
		}
		fmt.Printf("   [%s] %s\n", entry.Type, entry.Message)
		p.lastLog = entry.Timestamp
	}

	if s.Analysis != nil && !reflect.DeepEqual(s.Analysis, p.analysis) {
		printAnalysis(s.Analysis)
	}
	p.analysis = s.Analysis

	if p.connected && !s.Connected {
		fmt.Println("🔌 Disconnected, type /connect to reconnect")
	}
	p.connected = s.Connected
}

func printAnalysis(a *messages.Analysis) {
	fmt.Printf("📊 Overall %.1f | Sentiment %.1f | Resolution %.1f | Agent %.1f\n",
		a.OverallScore, a.Sentiment, a.Resolution, a.AgentPerformance)
	fmt.Printf("   Response %s, empathy %s, emotion %s, resolved %v\n",
		a.Metrics.ResponseTime, a.Metrics.EmpathyLevel, a.Metrics.CustomerEmotion, a.Metrics.ProblemResolved)
	for _, in := range a.Insights {
		fmt.Printf("   • (%s) %s\n", in.Type, in.Text)
	}
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8000", "Call-center server base URL")
	view := flag.String("role", "agent", "Client view: agent or customer")
	customerLabel := flag.String("customer-label", messages.DefaultCustomerLabel, "Customer speaker label")
	agentLabel := flag.String("agent-label", messages.DefaultAgentLabel, "Agent speaker label")
	optimistic := flag.Bool("optimistic", false, "Show own lines before the server echo")
	analysisTimeout := flag.Duration("analysis-timeout", 90*time.Second, "Give up waiting for an analysis after this long, 0 waits forever")
	flag.Parse()

	p := &printer{}
	c, err := client.New(client.Config{
		ServerURL:        *serverURL,
		View:             client.View(*view),
		Roles:            messages.NewRoles(*customerLabel, *agentLabel),
		OptimisticAppend: *optimistic,
		AnalysisTimeout:  *analysisTimeout,
		OnUpdate:         p.update,
	})
	if err != nil {
		log.Fatalf("Invalid options: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.Close()

	fmt.Printf("✅ Connected as %s (%s)\n", c.State().ClientID, *view)
	fmt.Println(help)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := run(ctx, c, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

// run executes one input line and reports whether the user asked to quit
func run(ctx context.Context, c *client.Client, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")

	var err error
	switch cmd {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(help)
	case "/customer":
		err = c.SimulateCustomer(arg)
	case "/analyze":
		err = c.RequestAnalysis()
	case "/live":
		var enabled bool
		if enabled, err = c.ToggleLiveMode(); err == nil {
			fmt.Printf("📡 Live mode %v\n", enabled)
		}
	case "/clear":
		err = c.Clear()
	case "/connect":
		if c.Connected() {
			fmt.Println("Already connected")
			return false
		}
		err = c.Connect(ctx)
	case "/state":
		s := c.State()
		fmt.Printf("id=%s connected=%v live=%v analyzing=%v lines=%d\n",
			s.ClientID, s.Connected, s.LiveMode, s.Analyzing, len(s.Transcript))
	default:
		err = c.Send(line)
	}

	switch {
	case err == nil:
	case errors.Is(err, client.ErrAnalysisUnavailable):
		fmt.Println("⚠️ Analysis unavailable: live mode is on, one is running, or the transcript is empty")
	default:
		fmt.Printf("❌ %v\n", err)
	}
	return false
}
