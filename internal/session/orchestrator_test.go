package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hectorgimenez/koolaunch/internal/captcha"
	"github.com/hectorgimenez/koolaunch/internal/event"
	"github.com/hectorgimenez/koolaunch/internal/game"
	"github.com/hectorgimenez/koolaunch/internal/launchenv"
	"github.com/hectorgimenez/koolaunch/internal/notify"
	"github.com/hectorgimenez/koolaunch/internal/patch"
	"github.com/hectorgimenez/koolaunch/internal/testutil"
)

type fakeAuth struct {
	session AuthSession
	err     error
	version VersionCheckResult
	otp     *string
	token   string
}

func (f *fakeAuth) Login(_ context.Context, _, _ string, otp *string, captchaToken string) (AuthSession, error) {
	f.otp = otp
	f.token = captchaToken
	return f.session, f.err
}

func (f *fakeAuth) CheckVersion(context.Context, string) (VersionCheckResult, error) {
	return f.version, nil
}

type fakeInjector struct {
	compatErr error
	state     InjectorState
	calls     int
	injected  []InjectOptions
}

func (f *fakeInjector) HoldForUpdate(context.Context, string) (InjectorState, error) {
	f.calls++
	return f.state, nil
}

func (f *fakeInjector) CheckCompatibility(context.Context) error {
	f.calls++
	return f.compatErr
}

func (f *fakeInjector) Inject(_ context.Context, _ int, opts InjectOptions) error {
	f.injected = append(f.injected, opts)
	return nil
}

type fakeCaptcha struct {
	token string
	err   error
}

func (f fakeCaptcha) Acquire(context.Context) (string, error) {
	return f.token, f.err
}

type fakePatcher struct {
	requests []patch.Request
	err      error
}

func (f *fakePatcher) ApplyPatches(_ context.Context, req patch.Request) error {
	f.requests = append(f.requests, req)
	return f.err
}

type fakeGames struct {
	launched  []game.LaunchRequest
	launchErr error
	release   chan struct{}
	entered   chan struct{}
}

func (f *fakeGames) Launch(_ context.Context, req game.LaunchRequest) (*game.Handle, error) {
	f.launched = append(f.launched, req)
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return &game.Handle{PID: 4242}, nil
}

func (f *fakeGames) SuperviseAddons(ctx context.Context, _ *game.Handle, _ []game.Addon) (int, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
	return 0, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (f *fakeNotifier) Notify(_ context.Context, m notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeNotifier) all() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Message(nil), f.messages...)
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if s, ok := e.(event.StageChangedEvent); ok {
			out = append(out, s.Stage)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type harness struct {
	auth     *fakeAuth
	injector *fakeInjector
	patcher  *fakePatcher
	games    *fakeGames
	notifier *fakeNotifier
	events   *recorder
	exits    []int
	flushed  bool
	// notified counts the notifications already sent when beforeExit ran.
	notified int
	captcha  fakeCaptcha
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sid := "session-1"
	h := &harness{
		auth:     &fakeAuth{session: AuthSession{Success: true, SessionID: &sid}},
		injector: &fakeInjector{state: InjectorOK},
		patcher:  &fakePatcher{},
		games:    &fakeGames{},
		notifier: &fakeNotifier{},
		events:   &recorder{},
		captcha:  fakeCaptcha{token: "tok"},
	}

	deps := Dependencies{
		Auth:       h.auth,
		Injector:   h.injector,
		NewCaptcha: func() CaptchaService { return h.captcha },
		Patcher:    h.patcher,
		Games:      h.games,
		EnvBuilder: launchenv.NewBuilder(launchenv.Compat{}, launchenv.WithLookup(func(string) (string, bool) { return "", false })),
		Notifier:   h.notifier,
	}
	h.orch = NewOrchestrator(slog.New(slog.NewTextHandler(io.Discard, nil)), deps,
		WithPublisher(h.events.publish),
		WithExit(func() { h.flushed, h.notified = true, len(h.notifier.all()) }, func(code int) { h.exits = append(h.exits, code) }),
		WithRuntimeValidator(func(string) error { return nil }),
	)

	return h
}

func baseContext() Context {
	return Context{
		Account:     "main",
		Credentials: Credentials{Username: "user", Password: "pass"},
		Settings: Settings{
			GamePath:       "/games/client.exe",
			Runner:         game.RunnerNative,
			CaptchaEnabled: true,
			LaunchArgs:     "FOO=bar %command% -windowed",
		},
	}
}

func TestLoginHappyPathCompletesAfterGameExit(t *testing.T) {
	h := newHarness(t)
	h.games.release = make(chan struct{})
	h.games.entered = make(chan struct{})

	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		o, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
		done <- result{o, err}
	}()

	testutil.RequireClosed(t, h.games.entered, testutil.Timeout, "supervision never started")

	testutil.RequireNoReceive(t, done, 50*time.Millisecond, "login returned before the game exited")
	if got := h.orch.Status().Stage; got != StageSupervising {
		t.Fatalf("expected stage %s while the game runs, got %s", StageSupervising, got)
	}

	close(h.games.release)
	res := testutil.RequireReceive(t, done, testutil.Timeout, "login did not return after the game exited")
	if res.err != nil || res.outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s %v", res.outcome, res.err)
	}

	if h.auth.token != "tok" {
		t.Fatalf("captcha token not forwarded, got %q", h.auth.token)
	}
	if len(h.games.launched) != 1 || h.games.launched[0].SessionID != "session-1" {
		t.Fatalf("unexpected launches %+v", h.games.launched)
	}
	if len(h.injector.injected) != 1 {
		t.Fatalf("expected one injection, got %d", len(h.injector.injected))
	}
	if args := h.games.launched[0].Env.Args; args != "-windowed" {
		t.Fatalf("unexpected launch args %q", args)
	}

	want := []string{
		string(StageCollectingCredentials), string(StageAcquiringCaptcha), string(StageAuthenticating),
		string(StageCheckingVersion), string(StageGatingRuntimeInjection), string(StageLaunching),
		string(StageSupervising), string(StageCompleted),
	}
	got := h.events.stages()
	if len(got) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected stages %v, got %v", want, got)
		}
	}
	if h.orch.Status().Stage != StageIdle {
		t.Fatalf("expected idle after the attempt, got %s", h.orch.Status().Stage)
	}
}

func TestLoginWhileBusyIsNoop(t *testing.T) {
	h := newHarness(t)
	h.games.release = make(chan struct{})
	h.games.entered = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	}()
	testutil.RequireClosed(t, h.games.entered, testutil.Timeout, "supervision never started")

	before := h.events.count()
	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeBusy || err != nil {
		t.Fatalf("expected busy no-op, got %s %v", outcome, err)
	}
	if h.events.count() != before {
		t.Fatal("busy call published events")
	}
	if len(h.games.launched) != 1 {
		t.Fatalf("busy call launched the game, %d launches", len(h.games.launched))
	}

	close(h.games.release)
	testutil.RequireClosed(t, done, testutil.Timeout, "first attempt never returned")
}

func TestLoginAuthRejected(t *testing.T) {
	h := newHarness(t)
	msg := "Wrong password"
	h.auth.session = AuthSession{Success: false, ErrorMessage: &msg}

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeRecovered || err != nil {
		t.Fatalf("expected recovered, got %s %v", outcome, err)
	}
	msgs := h.notifier.all()
	if len(msgs) != 1 || msgs[0].Body != msg {
		t.Fatalf("expected server message to be shown, got %+v", msgs)
	}
	if len(h.games.launched) != 0 {
		t.Fatal("game launched after rejected login")
	}
}

func TestLoginSuccessWithoutSessionIDIsRejected(t *testing.T) {
	h := newHarness(t)
	h.auth.session = AuthSession{Success: true}

	outcome, _ := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeRecovered {
		t.Fatalf("expected recovered, got %s", outcome)
	}
	if len(h.games.launched) != 0 {
		t.Fatal("game launched without a session id")
	}
}

func TestLoginFatalPatchFailureExits(t *testing.T) {
	h := newHarness(t)
	h.auth.version = VersionCheckResult{State: NeedsPatch, PendingPatches: []patch.Entry{{Repository: "game", VersionID: "v2"}}}
	h.patcher.err = &patch.Error{Kind: patch.KindVerification, Err: errors.New("hash mismatch")}

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeFatalAbort || !patch.IsFatal(err) {
		t.Fatalf("expected fatal abort, got %s %v", outcome, err)
	}
	if len(h.exits) != 1 || h.exits[0] != 1 {
		t.Fatalf("expected exit(1), got %v", h.exits)
	}
	if !h.flushed {
		t.Fatal("logs were not flushed before exit")
	}
	if h.notified != 1 {
		t.Fatalf("fatal notification must be sent before the exit hook runs, got %d", h.notified)
	}
	msgs := h.notifier.all()
	if len(msgs) != 1 || msgs[0].Severity != event.SeverityFatal {
		t.Fatalf("expected one fatal notification, got %+v", msgs)
	}
}

func TestLoginRecoverablePatchFailure(t *testing.T) {
	h := newHarness(t)
	h.auth.version = VersionCheckResult{State: NeedsPatch, PendingPatches: []patch.Entry{{Repository: "game", VersionID: "v2"}}}
	h.patcher.err = patch.SpaceError(patch.ScopePending, 2<<30, 1<<30)

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeRecovered || err != nil {
		t.Fatalf("expected recovered, got %s %v", outcome, err)
	}
	if len(h.exits) != 0 {
		t.Fatal("recoverable failure exited")
	}
	if msgs := h.notifier.all(); len(msgs) != 1 || msgs[0].Title != "Not enough space" {
		t.Fatalf("unexpected notifications %+v", msgs)
	}
}

func TestRepairNeverLaunches(t *testing.T) {
	h := newHarness(t)
	h.auth.version = VersionCheckResult{State: NeedsPatch, PendingPatches: []patch.Entry{{Repository: "game", VersionID: "v2"}}}

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionRepair)
	if outcome != OutcomeRecovered || err != nil {
		t.Fatalf("expected recovered, got %s %v", outcome, err)
	}
	if len(h.patcher.requests) != 1 {
		t.Fatalf("expected one patch batch, got %d", len(h.patcher.requests))
	}
	if len(h.games.launched) != 0 || h.injector.calls != 0 {
		t.Fatal("repair launched the game or touched the injector")
	}
	if msgs := h.notifier.all(); len(msgs) != 1 || msgs[0].Title != "Repair finished" {
		t.Fatalf("unexpected notifications %+v", msgs)
	}
}

func TestCaptchaWithoutBrowser(t *testing.T) {
	h := newHarness(t)
	h.captcha = fakeCaptcha{err: captcha.ErrNoBrowser}

	outcome, _ := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeRecovered {
		t.Fatalf("expected recovered, got %s", outcome)
	}
	if msgs := h.notifier.all(); len(msgs) != 1 || msgs[0].Title != "Verification unavailable" {
		t.Fatalf("unexpected notifications %+v", msgs)
	}
}

func TestCaptchaSkippedWhenDisabled(t *testing.T) {
	h := newHarness(t)
	h.captcha = fakeCaptcha{err: captcha.ErrNoBrowser}
	sc := baseContext()
	sc.Settings.CaptchaEnabled = false

	outcome, err := h.orch.Login(context.Background(), sc, ActionLaunch)
	if outcome != OutcomeCompleted || err != nil {
		t.Fatalf("expected completed, got %s %v", outcome, err)
	}
	if h.auth.token != "" {
		t.Fatalf("expected no captcha token, got %q", h.auth.token)
	}
}

func TestMissingRedistributablesRecovers(t *testing.T) {
	h := newHarness(t)
	h.injector.compatErr = ErrMissingRedistributables

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeRecovered || err != nil {
		t.Fatalf("expected recovered, got %s %v", outcome, err)
	}
	if len(h.games.launched) != 0 {
		t.Fatal("game launched without the runtime")
	}
}

func TestNoPluginRuntimeSkipsInjector(t *testing.T) {
	h := newHarness(t)
	h.injector.compatErr = ErrUnsupportedArchitecture

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionNoPluginRuntime)
	if outcome != OutcomeCompleted || err != nil {
		t.Fatalf("expected completed, got %s %v", outcome, err)
	}
	if h.injector.calls != 0 || len(h.injector.injected) != 0 {
		t.Fatal("injector used with the plugin runtime disabled")
	}
}

func TestInjectorUnavailablePropagates(t *testing.T) {
	h := newHarness(t)
	h.injector.state = InjectorUpdateFailed

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeRecovered || !errors.Is(err, ErrRuntimeInjectionUnavailable) {
		t.Fatalf("expected runtime unavailable error, got %s %v", outcome, err)
	}
}

func TestNoPluginsInjectOptions(t *testing.T) {
	h := newHarness(t)

	if _, err := h.orch.Login(context.Background(), baseContext(), ActionNoThirdPartyPlugins); err != nil {
		t.Fatal(err)
	}
	if len(h.injector.injected) != 1 || !h.injector.injected[0].NoThirdPartyPlugins || h.injector.injected[0].NoPlugins {
		t.Fatalf("unexpected inject options %+v", h.injector.injected)
	}
}

func TestEmptyNeedsPatchIsUpToDate(t *testing.T) {
	h := newHarness(t)
	h.auth.version = VersionCheckResult{State: NeedsPatch}

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeCompleted || err != nil {
		t.Fatalf("expected completed, got %s %v", outcome, err)
	}
	if len(h.patcher.requests) != 0 {
		t.Fatal("patcher called for an empty patch list")
	}
	for _, s := range h.events.stages() {
		if s == string(StagePatching) {
			t.Fatal("patching stage entered for an empty patch list")
		}
	}
}

func TestPatchBatchesFollowBackendOrder(t *testing.T) {
	h := newHarness(t)
	h.auth.version = VersionCheckResult{State: NeedsPatch, PendingPatches: []patch.Entry{
		{Repository: "boot", VersionID: "b1"},
		{Repository: "boot", VersionID: "b2"},
		{Repository: "game", VersionID: "g1"},
		{Repository: "boot", VersionID: "b3"},
		{Repository: "game", VersionID: "g2"},
	}}

	if _, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch); err != nil {
		t.Fatal(err)
	}

	var order []string
	var repos []string
	for _, req := range h.patcher.requests {
		repos = append(repos, req.Repository)
		for _, p := range req.Pending {
			if p.Repository != req.Repository {
				t.Fatalf("batch %s carries a %s patch", req.Repository, p.Repository)
			}
			order = append(order, p.VersionID)
		}
		if req.SessionID != "session-1" {
			t.Fatalf("session id not forwarded to patcher, got %q", req.SessionID)
		}
	}

	if got, want := strings.Join(order, ","), "b1,b2,g1,b3,g2"; got != want {
		t.Fatalf("expected install order %s, got %s", want, got)
	}
	if got, want := strings.Join(repos, ","), "boot,game,boot,game"; got != want {
		t.Fatalf("expected batches %s, got %s", want, got)
	}
}

func TestRepositoryBatches(t *testing.T) {
	tests := []struct {
		name  string
		repos string
		want  string
	}{
		{"empty", "", ""},
		{"single", "game", "game"},
		{"runs", "boot,boot,game", "boot boot|game"},
		{"interleaved", "boot,game,boot", "boot|game|boot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pending []patch.Entry
			if tt.repos != "" {
				for _, r := range strings.Split(tt.repos, ",") {
					pending = append(pending, patch.Entry{Repository: r})
				}
			}

			var parts []string
			for _, batch := range repositoryBatches(pending) {
				var names []string
				for _, p := range batch {
					names = append(names, p.Repository)
				}
				parts = append(parts, strings.Join(names, " "))
			}
			if got := strings.Join(parts, "|"); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestOTPPrecedence(t *testing.T) {
	h := newHarness(t)
	h.orch.deps.Codes = staticCodes{code: "123456"}
	h.orch.deps.Prompter = promptFunc(func(context.Context, string) (string, error) {
		t.Fatal("prompter used while auto-fill is configured")
		return "", nil
	})

	sc := baseContext()
	sc.Credentials.OTPEnabled = true
	sc.Settings.AutoFillOTP = true

	if _, err := h.orch.Login(context.Background(), sc, ActionLaunch); err != nil {
		t.Fatal(err)
	}
	if h.auth.otp == nil || *h.auth.otp != "123456" {
		t.Fatalf("expected auto-filled code, got %v", h.auth.otp)
	}
}

func TestOTPPromptCancelled(t *testing.T) {
	h := newHarness(t)
	h.orch.deps.Prompter = promptFunc(func(context.Context, string) (string, error) { return "", nil })

	sc := baseContext()
	sc.Credentials.OTPEnabled = true

	outcome, err := h.orch.Login(context.Background(), sc, ActionLaunch)
	if outcome != OutcomeRecovered || err != nil {
		t.Fatalf("expected silent recovery, got %s %v", outcome, err)
	}
	if len(h.notifier.all()) != 0 {
		t.Fatal("cancelled prompt produced a notification")
	}
}

func TestCallerContextUnchanged(t *testing.T) {
	h := newHarness(t)
	h.auth.version = VersionCheckResult{State: NeedsPatch, PendingPatches: []patch.Entry{{Repository: "game", VersionID: "v2"}}}

	sc := baseContext()
	if _, err := h.orch.Login(context.Background(), sc, ActionLaunch); err != nil {
		t.Fatal(err)
	}
	if sc.SessionID != "" || sc.CaptchaToken != "" || sc.AttemptID != "" || sc.PendingPatches != nil {
		t.Fatalf("caller context was modified: %+v", sc)
	}
}

func TestSpawnFailureRecovers(t *testing.T) {
	h := newHarness(t)
	h.games.launchErr = game.ErrSpawnFailed

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeRecovered || err != nil {
		t.Fatalf("expected recovered, got %s %v", outcome, err)
	}
	if msgs := h.notifier.all(); len(msgs) != 1 || msgs[0].Title != "Launch failed" {
		t.Fatalf("unexpected notifications %+v", msgs)
	}
}

func TestUnexpectedLaunchErrorIsReturned(t *testing.T) {
	h := newHarness(t)
	h.games.launchErr = errors.New("boom")

	outcome, err := h.orch.Login(context.Background(), baseContext(), ActionLaunch)
	if outcome != OutcomeRecovered || err == nil {
		t.Fatalf("expected the error to be returned, got %s %v", outcome, err)
	}
}

type staticCodes struct{ code string }

func (s staticCodes) Configured() bool              { return true }
func (s staticCodes) Current() (string, int, error) { return s.code, 20, nil }

type promptFunc func(ctx context.Context, account string) (string, error)

func (f promptFunc) PromptOTP(ctx context.Context, account string) (string, error) {
	return f(ctx, account)
}
