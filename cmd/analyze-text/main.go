package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/room4-2/callpulse/analysis"
	"github.com/room4-2/callpulse/config"
	"github.com/room4-2/callpulse/gemini"
	"github.com/room4-2/callpulse/messages"
	"github.com/room4-2/callpulse/openaicompat"
)

// analyze-text scores a transcript file with the configured analyzer and
// prints the JSON result. Lines without a speaker label are skipped.
func main() {
	file := flag.String("file", "-", "Transcript file, one \"<Label>: <text>\" line each, - for stdin")
	timeout := flag.Duration("timeout", 60*time.Second, "Analysis timeout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Fatalf("Failed to open transcript: %v", err)
		}
		defer f.Close()
		in = f
	}

	roles := messages.NewRoles(cfg.CustomerLabel, cfg.AgentLabel)
	var lines []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if _, _, ok := roles.Parse(line); !ok {
			if line != "" {
				log.Printf("⚠️ Skipping unlabeled line: %q", line)
			}
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed to read transcript: %v", err)
	}
	if len(lines) == 0 {
		log.Fatal("Transcript is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var analyzer analysis.Analyzer
	switch cfg.Analyzer {
	case config.AnalyzerOpenAI:
		analyzer, err = openaicompat.New(openaicompat.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
	default:
		analyzer, err = gemini.NewAnalyzer(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	}
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}

	log.Printf("Analyzing %d lines with %s...", len(lines), cfg.Analyzer)
	result, err := analyzer.Analyze(ctx, lines)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	out, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	os.Stdout.Write(append(out, '\n'))
}
