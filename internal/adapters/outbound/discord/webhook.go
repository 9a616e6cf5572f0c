package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jakobbotsch/krakengo/internal/events"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
	pending    sync.WaitGroup
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (n *Notifier) SendText(ctx context.Context, msg string) error {
	return n.send(ctx, webhookPayload{Content: msg})
}

func (n *Notifier) SendEmbed(ctx context.Context, embed Embed) error {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return n.send(ctx, webhookPayload{Embeds: []Embed{embed}})
}

func (n *Notifier) send(ctx context.Context, payload webhookPayload) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		telemetry.Warnf("discord: rate limited")
		return fmt.Errorf("discord rate limited")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status=%d", resp.StatusCode)
	}

	return nil
}

// --- Engine lifecycle alerts ---

const (
	ColorGreen  = 0x2ECC71
	ColorRed    = 0xE74C3C
	ColorYellow = 0xF1C40F
	ColorBlue   = 0x3498DB
)

// Attach posts reprices, cancel races and run completions. Posting happens
// on its own goroutine so the engine never waits on the webhook. Posts are
// detached from ctx's cancellation and bounded by the HTTP timeout; call
// Flush before exiting so the final alerts are delivered.
func (n *Notifier) Attach(ctx context.Context, bus *events.Bus) {
	if !n.Enabled() {
		return
	}
	postCtx := context.WithoutCancel(ctx)
	bus.SubscribeAll(func(e events.Event) error {
		embed, ok := EmbedFor(e)
		if !ok {
			return nil
		}
		n.pending.Add(1)
		go func() {
			defer n.pending.Done()
			if err := n.SendEmbed(postCtx, embed); err != nil {
				telemetry.Warnf("discord: %s: %v", e.Type, err)
			}
		}()
		return nil
	}, events.EventOrderRepriced, events.EventCancelRace, events.EventOrderDone)
}

// Flush waits for in-flight posts, giving up after timeout. It reports
// whether every post finished.
func (n *Notifier) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		n.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		telemetry.Warnf("discord: gave up waiting for pending alerts after %s", timeout)
		return false
	}
}

// EmbedFor renders a lifecycle event. Events without an alert return false.
func EmbedFor(e events.Event) (Embed, bool) {
	switch p := e.Payload.(type) {
	case events.OrderRepriced:
		return Embed{
			Title: fmt.Sprintf("Repriced %s", e.Pair),
			Color: ColorBlue,
			Fields: []Field{
				{Name: "From", Value: p.OldPrice.String(), Inline: true},
				{Name: "To", Value: p.NewPrice.String(), Inline: true},
				{Name: "Remaining", Value: p.Remaining.String(), Inline: true},
				{Name: "Canceled", Value: p.CanceledTxID, Inline: false},
			},
		}, true
	case events.CancelRace:
		return Embed{
			Title:       fmt.Sprintf("Cancel rejected %s", e.Pair),
			Description: p.Error,
			Color:       ColorYellow,
			Fields: []Field{
				{Name: "Order ID", Value: p.TxID, Inline: true},
				{Name: "Attempt", Value: fmt.Sprint(p.Attempt), Inline: true},
			},
		}, true
	case events.OrderDone:
		color := ColorGreen
		if !p.VolumeExecuted.Equal(p.Volume) {
			color = ColorRed
		}
		return Embed{
			Title: fmt.Sprintf("Order %s %s", p.Status, e.Pair),
			Color: color,
			Fields: []Field{
				{Name: "Side", Value: string(p.Side), Inline: true},
				{Name: "Executed", Value: fmt.Sprintf("%s / %s", p.VolumeExecuted, p.Volume), Inline: true},
				{Name: "Reprices", Value: fmt.Sprint(p.Reprices), Inline: true},
				{Name: "Elapsed", Value: p.Elapsed.Round(time.Second).String(), Inline: true},
				{Name: "Order ID", Value: p.TxID, Inline: false},
			},
		}, true
	}
	return Embed{}, false
}
