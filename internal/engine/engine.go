// Package engine implements the admission interview state machine: timed
// challenge-response sessions gating entry to the game server allow-list.
//
// Every session transition (begin, answer, deadline expiry, cancel, reap,
// shutdown) runs under one engine mutex, so no two operations on the same
// interview ever interleave. Slow collaborator calls (question generation,
// transcript scoring, remote allow-list commands, message delivery) run
// outside the mutex, concurrently across interviews.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/storage"
)

// deliverTimeout bounds one outbound message send.
const deliverTimeout = 10 * time.Second

// Examiner generates interview questions and scores completed transcripts.
// Implementations own their retry policy; the engine converts any returned
// error into fallback behavior (bank questions, score zero).
type Examiner interface {
	GenerateQuestions(ctx context.Context, n int) ([]string, error)
	Score(ctx context.Context, transcript []model.QA) (int, error)
}

// QuestionBank supplies fallback questions when the examiner is disabled or
// failing. Sample returns n distinct questions.
type QuestionBank interface {
	Sample(n int) ([]string, error)
}

// Deliverer sends fire-and-forget text to a channel: questions, verdicts,
// expiry notices.
type Deliverer interface {
	Deliver(ctx context.Context, channel, text string) error
}

// Applier turns a passing interview into allow-list state. It must not fail:
// the local mirror write always happens and the remote outcome is reported
// as a boolean.
type Applier interface {
	Apply(ctx context.Context, entry model.WhitelistEntry) (remoteOK bool)
}

// EventHook receives interview lifecycle notifications. Hooks run on their
// own goroutines; failures are logged, never propagated.
type EventHook interface {
	OnInterviewStarted(ctx context.Context, iv model.Interview) error
	OnInterviewEnded(ctx context.Context, rec model.AuditRecord) error
}

// Config carries the engine's tunables. Validation happens at config load;
// the engine trusts these values.
type Config struct {
	QuestionCount    int
	PassScore        int
	AnswerTimeout    time.Duration
	CooldownDuration time.Duration
	MaxPerRequester  int
	// QuotaCountsAdmin includes admin-added whitelist entries in the
	// per-requester quota count.
	QuotaCountsAdmin bool
	AnswerMaxRunes   int
	IdleTimeout      time.Duration
	ReapInterval     time.Duration
	SweepInterval    time.Duration
	// ChannelAllowed authorizes a channel for interviews. nil allows all.
	ChannelAllowed func(channel string) bool
}

// Deps are the engine's collaborators. Store is required; a nil Scheduler,
// Logger, or Clock gets a production default.
type Deps struct {
	Store     storage.Store
	Examiner  Examiner
	Bank      QuestionBank
	Applier   Applier
	Deliverer Deliverer
	Scheduler Scheduler
	Logger    *slog.Logger
	Clock     func() time.Time
	Hooks     []EventHook
}

// Engine orchestrates interviews: precondition checks, question delivery,
// per-question deadlines, the answer-vs-timeout race, completion, and the
// admission decision.
type Engine struct {
	cfg       Config
	store     storage.Store
	examiner  Examiner
	bank      QuestionBank
	applier   Applier
	deliverer Deliverer
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time
	hooks     []EventHook

	// mu serializes all session transitions. Never held across examiner,
	// executor, storage, or delivery calls.
	mu        sync.Mutex
	closed    bool
	sessions  *sessionStore
	locks     *nameLocks
	cooldowns *cooldownLedger

	// wg tracks detached work: question fetches, completions, deliveries,
	// hook notifications. Shutdown waits for it.
	wg sync.WaitGroup
}

// New builds an Engine and hydrates the cooldown ledger from storage,
// dropping entries that expired while the service was down.
func New(ctx context.Context, cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewTimerScheduler()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	e := &Engine{
		cfg:       cfg,
		store:     deps.Store,
		examiner:  deps.Examiner,
		bank:      deps.Bank,
		applier:   deps.Applier,
		deliverer: deps.Deliverer,
		scheduler: deps.Scheduler,
		logger:    deps.Logger,
		now:       deps.Clock,
		hooks:     deps.Hooks,
		sessions:  newSessionStore(),
		locks:     newNameLocks(),
		cooldowns: newCooldownLedger(),
	}

	persisted, err := deps.Store.ListCooldowns(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: hydrate cooldowns: %w", err)
	}
	e.cooldowns.Hydrate(persisted, e.now())

	return e, nil
}

// Begin starts an interview for (requester, channel) vetting player.
// Preconditions are checked in order, first failure wins. On success the
// player name is locked and a reservation exists before Begin returns; the
// caller should acknowledge immediately, and the first question arrives
// asynchronously once the examiner (or the bank) produces the set.
func (e *Engine) Begin(ctx context.Context, requester, channel, player string) error {
	if e.cfg.ChannelAllowed != nil && !e.cfg.ChannelAllowed(channel) {
		return ErrChannelNotAllowed
	}
	if err := model.ValidatePlayerName(player); err != nil {
		return ErrBadPlayerName
	}

	key := SessionKey{Requester: requester, Channel: channel}
	if _, ok := e.sessions.Get(key); ok {
		return ErrInterviewActive
	}

	// Quota and prior-approval checks read storage outside the transition
	// lock; the name lock below is what carries the mutual exclusion.
	count, err := e.store.CountWhitelistByRequester(ctx, requester, e.cfg.QuotaCountsAdmin)
	if err != nil {
		return fmt.Errorf("engine: count approvals: %w", err)
	}
	if count >= e.cfg.MaxPerRequester {
		return ErrQuotaExceeded
	}
	if _, err := e.store.GetWhitelist(ctx, player); err == nil {
		return ErrAlreadyWhitelisted
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("engine: check whitelist: %w", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrShuttingDown
	}
	if _, ok := e.sessions.Get(key); ok {
		e.mu.Unlock()
		return ErrInterviewActive
	}
	now := e.now()
	if rem := e.cooldowns.Remaining(requester, player, now); rem > 0 {
		e.mu.Unlock()
		return &CooldownActiveError{Remaining: rem}
	}
	if !e.locks.TryAcquire(player, key) {
		e.mu.Unlock()
		return ErrNameLocked
	}
	iv := &model.Interview{
		ID:        uuid.New(),
		Requester: requester,
		Channel:   channel,
		Player:    player,
		CreatedAt: now,
		LastSeen:  now,
	}
	e.sessions.Put(key, &session{iv: iv, pending: true})
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Info("interview requested",
		"requester", requester, "channel", channel, "player", player, "id", iv.ID)

	go e.prepareQuestions(key, iv)
	return nil
}

// prepareQuestions is the detached continuation of Begin: fetch the question
// set, attach it, arm deadline zero, deliver question one. On failure the
// reservation rolls back so no lock remains taken.
func (e *Engine) prepareQuestions(key SessionKey, iv *model.Interview) {
	defer e.wg.Done()
	ctx := context.Background()

	questions, err := e.fetchQuestions(ctx)
	if err != nil {
		e.logger.Error("question acquisition failed, rolling back interview",
			"player", iv.Player, "error", err)
		e.mu.Lock()
		if sess, ok := e.sessions.Get(key); ok && sess.iv == iv {
			e.locks.Release(iv.Player, key)
			e.sessions.Remove(key)
		}
		e.mu.Unlock()
		e.deliverAsync(iv.Channel, msgPrepareFailed())
		return
	}

	e.mu.Lock()
	sess, ok := e.sessions.Get(key)
	if !ok || sess.iv != iv {
		// Cancelled or shut down while fetching; that path did the release.
		e.mu.Unlock()
		return
	}
	now := e.now()
	iv.Questions = questions
	iv.AskedAt = now
	iv.LastSeen = now
	sess.pending = false
	e.armDeadlineLocked(sess, key, 0)
	e.mu.Unlock()

	e.logger.Info("interview started",
		"requester", iv.Requester, "player", iv.Player, "questions", len(questions))
	e.notifyStarted(*iv)
	e.deliverAsync(iv.Channel, msgQuestion(0, len(questions), questions[0], e.cfg.AnswerTimeout))
}

func (e *Engine) fetchQuestions(ctx context.Context) ([]string, error) {
	n := e.cfg.QuestionCount
	if e.examiner != nil {
		qs, err := e.examiner.GenerateQuestions(ctx, n)
		switch {
		case err != nil:
			e.logger.Warn("examiner generation failed, falling back to bank", "error", err)
		case len(qs) < n:
			e.logger.Warn("examiner returned too few questions, falling back to bank",
				"got", len(qs), "want", n)
		default:
			return qs[:n], nil
		}
	}
	if e.bank == nil {
		return nil, errors.New("engine: no question source available")
	}
	return e.bank.Sample(n)
}

// Answer records the requester's answer to the outstanding question. It
// either advances to the next question (delivered asynchronously) or, on the
// final answer, kicks off scoring and completion on a detached goroutine.
func (e *Engine) Answer(ctx context.Context, requester, channel, text string) error {
	answer := strings.TrimSpace(text)
	if answer == "" {
		return ErrEmptyAnswer
	}
	if utf8.RuneCountInString(answer) > e.cfg.AnswerMaxRunes {
		answer = string([]rune(answer)[:e.cfg.AnswerMaxRunes])
	}

	key := SessionKey{Requester: requester, Channel: channel}

	e.mu.Lock()
	sess, ok := e.sessions.Get(key)
	if !ok {
		e.mu.Unlock()
		return ErrNoInterview
	}
	if sess.pending {
		e.mu.Unlock()
		return ErrNotReady
	}
	iv := sess.iv
	if iv.Answered() {
		e.mu.Unlock()
		return ErrScoringInProgress
	}
	now := e.now()
	if now.Sub(iv.AskedAt) > e.cfg.AnswerTimeout {
		// The deadline passed but the timer has not fired yet. Run the
		// expiry transition here rather than accept a late answer.
		out := e.expireLocked(key, sess, iv.Index)
		e.wg.Add(1)
		e.mu.Unlock()
		e.finishTerminal(out)
		e.wg.Done()
		return ErrDeadlineExpired
	}

	e.cancelTimerLocked(sess)
	iv.Answers = append(iv.Answers, answer)
	iv.Index++
	iv.LastSeen = now

	if iv.Answered() {
		e.wg.Add(1)
		e.mu.Unlock()
		e.logger.Info("answer set complete, scoring",
			"requester", requester, "player", iv.Player)
		go e.complete(key, sess)
		return nil
	}

	iv.AskedAt = now
	e.armDeadlineLocked(sess, key, iv.Index)
	index, total, question := iv.Index, len(iv.Questions), iv.CurrentQuestion()
	e.mu.Unlock()

	e.logger.Debug("answer recorded",
		"requester", requester, "player", iv.Player, "index", index-1)
	e.deliverAsync(iv.Channel, msgQuestion(index, total, question, e.cfg.AnswerTimeout))
	return nil
}

// complete scores a fully answered interview and applies the verdict. The
// scoring call runs without the engine mutex; the final transition re-checks
// that this session still owns its slot, so a concurrent cancel or shutdown
// makes completion a no-op.
func (e *Engine) complete(key SessionKey, sess *session) {
	defer e.wg.Done()
	ctx := context.Background()
	iv := sess.iv
	transcript := iv.Transcript()

	score := e.scoreTranscript(ctx, transcript)
	passed := score >= e.cfg.PassScore

	e.mu.Lock()
	cur, ok := e.sessions.Get(key)
	if !ok || cur.iv != iv {
		e.mu.Unlock()
		e.logger.Warn("completion superseded by cancel or shutdown, dropping result",
			"requester", iv.Requester, "player", iv.Player)
		return
	}
	now := e.now()
	e.locks.Release(iv.Player, key)
	var cooldown *model.CooldownEntry
	if !passed {
		cd := model.CooldownEntry{
			Requester: iv.Requester,
			Player:    iv.Player,
			Reason:    model.ReasonCompleted,
			ExpiresAt: now.Add(e.cfg.CooldownDuration),
			CreatedAt: now,
		}
		e.cooldowns.Set(cd)
		cooldown = &cd
	}
	e.sessions.Remove(key)
	e.mu.Unlock()

	rec := model.AuditRecord{
		ID:         iv.ID,
		Requester:  iv.Requester,
		Channel:    iv.Channel,
		Player:     iv.Player,
		Transcript: transcript,
		Score:      score,
		Passed:     passed,
		Reason:     model.ReasonCompleted,
		StartedAt:  iv.CreatedAt,
		EndedAt:    now,
	}
	rec = e.appendAudit(ctx, rec)
	if cooldown != nil {
		if err := e.store.UpsertCooldown(ctx, *cooldown); err != nil {
			e.logger.Error("persist cooldown failed", "player", iv.Player, "error", err)
		}
	}

	maxScore := model.MaxScore(len(iv.Questions))
	if passed {
		entry := model.WhitelistEntry{
			Player:     iv.Player,
			Requester:  iv.Requester,
			ApprovedBy: "interview",
			Source:     model.SourceInterview,
			Score:      &score,
			CreatedAt:  now,
		}
		remoteOK := true
		if e.applier != nil {
			remoteOK = e.applier.Apply(ctx, entry)
		}
		e.logger.Info("interview passed",
			"requester", iv.Requester, "player", iv.Player, "score", score, "remote_ok", remoteOK)
		e.deliverAsync(iv.Channel, msgVerdictPassed(iv.Player, score, maxScore, remoteOK))
	} else {
		e.logger.Info("interview failed",
			"requester", iv.Requester, "player", iv.Player, "score", score, "pass", e.cfg.PassScore)
		e.deliverAsync(iv.Channel, msgVerdictFailed(score, maxScore, e.cfg.PassScore, e.cfg.CooldownDuration))
	}
	e.notifyEnded(rec)
}

// scoreTranscript calls the examiner and fails closed to zero on any error.
// Retry policy lives inside the examiner.
func (e *Engine) scoreTranscript(ctx context.Context, transcript []model.QA) int {
	if e.examiner == nil {
		e.logger.Warn("no examiner configured, scoring zero")
		return 0
	}
	score, err := e.examiner.Score(ctx, transcript)
	if err != nil {
		e.logger.Error("scoring failed, failing closed to zero", "error", err)
		return 0
	}
	if max := model.MaxScore(len(transcript)); score > max {
		score = max
	}
	if score < 0 {
		score = 0
	}
	return score
}

// fireTimeout is the scheduler callback for (key, index). It acts only when
// the session still exists, the index still matches, and the name lock is
// still held by this session. An answer that won the race already advanced
// the index or removed the session, making this a no-op.
func (e *Engine) fireTimeout(key SessionKey, index int) {
	e.mu.Lock()
	sess, ok := e.sessions.Get(key)
	if !ok {
		e.mu.Unlock()
		return
	}
	iv := sess.iv
	if iv.Index != index {
		e.mu.Unlock()
		return
	}
	if !e.locks.HeldBy(iv.Player, key) {
		e.mu.Unlock()
		return
	}
	out := e.expireLocked(key, sess, index)
	e.mu.Unlock()

	e.logger.Info("question deadline fired",
		"requester", iv.Requester, "player", iv.Player, "index", index)
	e.finishTerminal(out)
}

// terminal carries the side effects of a terminal transition out of the
// engine mutex: the audit record to append, the cooldown to persist, and the
// notice to deliver.
type terminal struct {
	rec      model.AuditRecord
	cooldown *model.CooldownEntry
	channel  string
	verdict  string
}

// expireLocked performs the forced-fail expiry of a session: sentinel
// answer, lock release, in-memory cooldown, session removal last. Caller
// holds e.mu.
func (e *Engine) expireLocked(key SessionKey, sess *session, index int) terminal {
	iv := sess.iv
	now := e.now()
	e.cancelTimerLocked(sess)
	if index < len(iv.Questions) {
		iv.Answers = append(iv.Answers, model.AnswerSentinel)
	}
	e.locks.Release(iv.Player, key)
	cd := model.CooldownEntry{
		Requester: iv.Requester,
		Player:    iv.Player,
		Reason:    model.ReasonTimeout,
		ExpiresAt: now.Add(e.cfg.CooldownDuration),
		CreatedAt: now,
	}
	e.cooldowns.Set(cd)
	e.sessions.Remove(key)

	idx := index
	return terminal{
		rec: model.AuditRecord{
			ID:         iv.ID,
			Requester:  iv.Requester,
			Channel:    iv.Channel,
			Player:     iv.Player,
			Transcript: iv.Transcript(),
			Score:      0,
			Passed:     false,
			Reason:     model.ReasonTimeout,
			TimedOutAt: &idx,
			StartedAt:  iv.CreatedAt,
			EndedAt:    now,
		},
		cooldown: &cd,
		channel:  iv.Channel,
		verdict:  msgTimedOut(index, len(iv.Questions), e.cfg.CooldownDuration),
	}
}

// finishTerminal applies a terminal transition's side effects outside the
// engine mutex.
func (e *Engine) finishTerminal(out terminal) {
	ctx := context.Background()
	out.rec = e.appendAudit(ctx, out.rec)
	if out.cooldown != nil {
		if err := e.store.UpsertCooldown(ctx, *out.cooldown); err != nil {
			e.logger.Error("persist cooldown failed", "player", out.rec.Player, "error", err)
		}
	}
	if out.verdict != "" {
		e.deliverAsync(out.channel, out.verdict)
	}
	e.notifyEnded(out.rec)
}

// Cancel is the admin edge: terminal from any non-terminal state, lock
// released, audit written with reason cancelled, no cooldown.
func (e *Engine) Cancel(ctx context.Context, requester, channel string) error {
	key := SessionKey{Requester: requester, Channel: channel}

	e.mu.Lock()
	sess, ok := e.sessions.Get(key)
	if !ok {
		e.mu.Unlock()
		return ErrNoInterview
	}
	iv := sess.iv
	now := e.now()
	e.cancelTimerLocked(sess)
	e.locks.Release(iv.Player, key)
	e.sessions.Remove(key)
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	rec := model.AuditRecord{
		ID:         iv.ID,
		Requester:  iv.Requester,
		Channel:    iv.Channel,
		Player:     iv.Player,
		Transcript: iv.Transcript(),
		Score:      0,
		Passed:     false,
		Reason:     model.ReasonCancelled,
		StartedAt:  iv.CreatedAt,
		EndedAt:    now,
	}
	rec = e.appendAudit(ctx, rec)

	e.logger.Info("interview cancelled",
		"requester", requester, "channel", channel, "player", iv.Player)
	e.deliverAsync(iv.Channel, msgCancelled(iv.Player))
	e.notifyEnded(rec)
	return nil
}

// Status reports the live interview for (requester, channel).
func (e *Engine) Status(requester, channel string) (model.InterviewSnapshot, error) {
	key := SessionKey{Requester: requester, Channel: channel}
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions.Get(key)
	if !ok {
		return model.InterviewSnapshot{}, ErrNoInterview
	}
	return e.snapshotLocked(sess), nil
}

// Snapshot lists every live interview, for the ops API.
func (e *Engine) Snapshot() []model.InterviewSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.InterviewSnapshot, 0, e.sessions.Len())
	for _, key := range e.sessions.Keys() {
		if sess, ok := e.sessions.Get(key); ok {
			out = append(out, e.snapshotLocked(sess))
		}
	}
	return out
}

func (e *Engine) snapshotLocked(sess *session) model.InterviewSnapshot {
	iv := sess.iv
	snap := model.InterviewSnapshot{
		ID:            iv.ID,
		Requester:     iv.Requester,
		Channel:       iv.Channel,
		Player:        iv.Player,
		QuestionCount: len(iv.Questions),
		Index:         iv.Index,
		AskedAt:       iv.AskedAt,
		CreatedAt:     iv.CreatedAt,
	}
	if sess.pending {
		snap.QuestionCount = e.cfg.QuestionCount
	}
	if !iv.AskedAt.IsZero() && !iv.Answered() {
		snap.Deadline = iv.AskedAt.Add(e.cfg.AnswerTimeout)
	}
	return snap
}

// Cooldowns lists active retry lockouts.
func (e *Engine) Cooldowns() []model.CooldownEntry {
	return e.cooldowns.List(e.now())
}

// ClearCooldown removes a cooldown by admin action, in memory and in
// storage.
func (e *Engine) ClearCooldown(ctx context.Context, requester, player string) error {
	if !e.cooldowns.Clear(requester, player) {
		return ErrNoCooldown
	}
	if err := e.store.DeleteCooldown(ctx, requester, player); err != nil {
		return fmt.Errorf("engine: delete cooldown: %w", err)
	}
	return nil
}

// Rules returns the interview parameters, for help and status text.
func (e *Engine) Rules() Config { return e.cfg }

// ActiveInterviews returns the number of live sessions.
func (e *Engine) ActiveInterviews() int { return e.sessions.Len() }

// LockedNames returns the number of player names under interview.
func (e *Engine) LockedNames() int { return e.locks.Len() }

// ActiveCooldowns returns the number of cooldowns still in force.
func (e *Engine) ActiveCooldowns() int { return e.cooldowns.Active(e.now()) }

// Shutdown stops intake and force-expires every live interview through the
// normal release sequence: deadline cancelled, lock released, audit written
// with reason shutdown. No cooldown is created; a restart must not penalize
// requesters. Waits for detached work up to ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	var outs []terminal
	for _, key := range e.sessions.Keys() {
		sess, ok := e.sessions.Get(key)
		if !ok {
			continue
		}
		iv := sess.iv
		e.cancelTimerLocked(sess)
		e.locks.Release(iv.Player, key)
		e.sessions.Remove(key)
		outs = append(outs, terminal{
			rec: model.AuditRecord{
				ID:         iv.ID,
				Requester:  iv.Requester,
				Channel:    iv.Channel,
				Player:     iv.Player,
				Transcript: iv.Transcript(),
				Score:      0,
				Passed:     false,
				Reason:     model.ReasonShutdown,
				StartedAt:  iv.CreatedAt,
				EndedAt:    e.now(),
			},
			channel: iv.Channel,
			verdict: msgShutdown(iv.Player),
		})
	}
	e.mu.Unlock()

	if len(outs) > 0 {
		e.logger.Info("shutdown releasing live interviews", "count", len(outs))
	}
	for _, out := range outs {
		e.finishTerminal(out)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine: shutdown wait: %w", ctx.Err())
	}
}

// armDeadlineLocked schedules the deadline for question index. The armed
// callback holds a wait-group token so Shutdown cannot outrun a firing
// timer's side effects; cancelTimerLocked returns the token when the timer
// is stopped before firing.
func (e *Engine) armDeadlineLocked(sess *session, key SessionKey, index int) {
	e.cancelTimerLocked(sess)
	e.wg.Add(1)
	sess.timer = e.scheduler.Arm(key, index, e.cfg.AnswerTimeout, func() {
		defer e.wg.Done()
		e.fireTimeout(key, index)
	})
}

func (e *Engine) cancelTimerLocked(sess *session) {
	if sess.timer == nil {
		return
	}
	if sess.timer.Cancel() {
		e.wg.Done()
	}
	sess.timer = nil
}

// appendAudit writes the record and returns the stored, chain-linked copy.
// Audit failures are logged, never fatal to the interview path.
func (e *Engine) appendAudit(ctx context.Context, rec model.AuditRecord) model.AuditRecord {
	stored, err := e.store.AppendAudit(ctx, rec)
	if err != nil {
		e.logger.Error("audit append failed", "player", rec.Player, "error", err)
		return rec
	}
	return stored
}

func (e *Engine) deliverAsync(channel, text string) {
	if e.deliverer == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		defer cancel()
		if err := e.deliverer.Deliver(ctx, channel, text); err != nil {
			e.logger.Warn("message delivery failed", "channel", channel, "error", err)
		}
	}()
}

func (e *Engine) notifyStarted(iv model.Interview) {
	for _, h := range e.hooks {
		h := h
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := h.OnInterviewStarted(context.Background(), iv); err != nil {
				e.logger.Warn("event hook failed", "event", "interview_started", "error", err)
			}
		}()
	}
}

func (e *Engine) notifyEnded(rec model.AuditRecord) {
	for _, h := range e.hooks {
		h := h
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := h.OnInterviewEnded(context.Background(), rec); err != nil {
				e.logger.Warn("event hook failed", "event", "interview_ended", "error", err)
			}
		}()
	}
}
