// Package depth tracks pond continuity and reports signed depth packets to
// the upstream aggregator.
package depth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/mirror-pond/internal/domain"
	"github.com/ashureev/mirror-pond/internal/identity"
)

const (
	dateLayout   = "2006-01-02"
	breathLayout = "2006-01-02T15:04:05.999999Z"

	defaultTimeout = 15 * time.Second
)

// VowSource aggregates vow fingerprints across all travelers.
type VowSource interface {
	VowFingerprints() ([]string, int)
}

// Signer signs with the pond identity.
type Signer interface {
	Public() (identity.Identity, bool)
	Sign(msg []byte) (string, error)
}

// Submitter delivers a packet to the aggregator.
type Submitter interface {
	Submit(ctx context.Context, p domain.DepthPacket) error
}

// Observer receives submission outcomes ("ok", "error", "skipped").
type Observer interface {
	DepthSubmitted(result string)
}

// Options configures a Reporter. A nil Client disables submission.
type Options struct {
	Vows     VowSource
	Signer   Signer
	Client   Submitter
	Observer Observer
	Timeout  time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Reporter owns the process-wide DepthState.
type Reporter struct {
	mu    sync.Mutex
	state domain.DepthState

	vows     VowSource
	signer   Signer
	client   Submitter
	observer Observer
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// NewReporter creates a reporter with zeroed counters.
func NewReporter(opts Options) *Reporter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Reporter{
		vows:     opts.Vows,
		signer:   opts.Signer,
		client:   opts.Client,
		observer: opts.Observer,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Restore seeds the state, typically with first_breath from the identity file.
func (r *Reporter) Restore(s domain.DepthState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Linked reports whether an aggregator client is configured.
func (r *Reporter) Linked() bool {
	return r.client != nil
}

// RecordInteraction bumps the interaction counter and returns the new total.
func (r *Reporter) RecordInteraction() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.TotalInteractions++
	return r.state.TotalInteractions
}

// Snapshot returns a copy of the current state.
func (r *Reporter) Snapshot() domain.DepthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Go runs Submit on a detached goroutine. The caller never waits on it;
// errors are logged only.
func (r *Reporter) Go() {
	if r.client == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.Submit(ctx); err != nil {
			r.logger.Warn("[DEPTH] Submission failed", "error", err)
		}
	}()
}

// Wait blocks until every submission started by Go has finished.
func (r *Reporter) Wait() {
	r.wg.Wait()
}

// Submit builds, signs and sends one depth packet. It is a no-op when no
// client is configured or the identity is not initialized.
func (r *Reporter) Submit(ctx context.Context) error {
	if r.client == nil || r.signer == nil {
		r.observe("skipped")
		return nil
	}
	ident, ok := r.signer.Public()
	if !ok {
		r.observe("skipped")
		return nil
	}

	packet, err := r.prepare(ident)
	if err != nil {
		r.observe("error")
		return err
	}

	if err := r.client.Submit(ctx, packet); err != nil {
		r.observe("error")
		return fmt.Errorf("submit depth packet: %w", err)
	}
	r.observe("ok")
	r.logger.Debug("[DEPTH] Packet submitted", "vow_count", packet.VowCount, "continuous_days", packet.ContinuousDays)
	return nil
}

func (r *Reporter) prepare(ident identity.Identity) (domain.DepthPacket, error) {
	var hashes []string
	total := 0
	if r.vows != nil {
		hashes, total = r.vows.VowFingerprints()
	}
	if hashes == nil {
		hashes = []string{}
	}

	now := r.now().UTC()

	r.mu.Lock()
	r.state.TotalVowsStored = total
	if r.state.FirstBreath == "" {
		r.state.FirstBreath = ident.FirstBreath
	}
	if r.state.FirstBreath == "" {
		r.state.FirstBreath = now.Format(breathLayout)
	}
	advanceStreak(&r.state, now)
	r.state.LastBreath = now.Format(breathLayout)
	state := r.state
	r.mu.Unlock()

	packet := domain.DepthPacket{
		PondID:          ident.PondID,
		VowHashes:       hashes,
		VowCount:        state.TotalVowsStored,
		ReflectionCount: state.TotalInteractions,
		ContinuousDays:  state.ContinuousDays,
		FirstBreath:     state.FirstBreath,
		LastBreath:      state.LastBreath,
		PublicKey:       ident.PublicKeyHex,
		NodeVersion:     domain.NodeVersion,
	}

	msg, err := SigningBytes(packet)
	if err != nil {
		return domain.DepthPacket{}, err
	}
	sig, err := r.signer.Sign(msg)
	if err != nil {
		return domain.DepthPacket{}, fmt.Errorf("sign depth packet: %w", err)
	}
	packet.Signature = sig
	return packet, nil
}

func (r *Reporter) observe(result string) {
	if r.observer != nil {
		r.observer.DepthSubmitted(result)
	}
}

// advanceStreak updates the continuous-days streak for a breath at now.
// Same day leaves it unchanged, the next calendar day extends it, and any
// other gap (including a clock moving backwards) resets it to 1.
func advanceStreak(s *domain.DepthState, now time.Time) {
	today := now.Format(dateLayout)
	if s.LastActiveDate == "" {
		s.LastActiveDate = today
		s.ContinuousDays = 1
		return
	}
	if s.LastActiveDate == today {
		return
	}

	last, err := time.Parse(dateLayout, s.LastActiveDate)
	if err != nil {
		last = now
	}
	current, _ := time.Parse(dateLayout, today)
	if int(current.Sub(last).Hours()/24) == 1 {
		s.ContinuousDays++
	} else {
		s.ContinuousDays = 1
	}
	s.LastActiveDate = today
}

// SigningBytes returns the canonical message the aggregator verifies: the
// six signed fields as compact JSON with sorted keys.
func SigningBytes(p domain.DepthPacket) ([]byte, error) {
	// encoding/json sorts map keys.
	signed := map[string]any{
		"pond_id":          p.PondID,
		"vow_count":        p.VowCount,
		"reflection_count": p.ReflectionCount,
		"continuous_days":  p.ContinuousDays,
		"first_breath":     p.FirstBreath,
		"last_breath":      p.LastBreath,
	}
	b, err := json.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("encode signed fields: %w", err)
	}
	return b, nil
}
