package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hectorgimenez/koolaunch/internal/captcha"
	"github.com/hectorgimenez/koolaunch/internal/event"
	"github.com/hectorgimenez/koolaunch/internal/game"
	"github.com/hectorgimenez/koolaunch/internal/launchenv"
	"github.com/hectorgimenez/koolaunch/internal/notify"
	"github.com/hectorgimenez/koolaunch/internal/patch"
)

type Stage string

const (
	StageIdle                   Stage = "Idle"
	StageCollectingCredentials  Stage = "CollectingCredentials"
	StageAcquiringCaptcha       Stage = "AcquiringCaptcha"
	StageAuthenticating         Stage = "Authenticating"
	StageCheckingVersion        Stage = "CheckingVersion"
	StagePatching               Stage = "Patching"
	StageGatingRuntimeInjection Stage = "GatingRuntimeInjection"
	StageLaunching              Stage = "Launching"
	StageSupervising            Stage = "Supervising"
	StageCompleted              Stage = "Completed"
	StageRecovered              Stage = "Recovered"
	StageFatalAbort             Stage = "FatalAbort"
)

type Outcome int

const (
	// OutcomeCompleted means the game ran and exited, the host should terminate.
	OutcomeCompleted Outcome = iota
	// OutcomeRecovered means the attempt stopped and the launcher is ready again.
	OutcomeRecovered
	OutcomeFatalAbort
	// OutcomeBusy is returned when another attempt is in flight. Nothing happened.
	OutcomeBusy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRecovered:
		return "recovered"
	case OutcomeFatalAbort:
		return "fatal"
	default:
		return "busy"
	}
}

// CaptchaService acquires one verification token. A new one is used per attempt.
type CaptchaService interface {
	Acquire(ctx context.Context) (string, error)
}

// CodeSource provides auto-filled one-time codes, see otp.Generator.
type CodeSource interface {
	Configured() bool
	Current() (string, int, error)
}

// OTPPrompter asks the user for a one-time code. An empty code cancels.
type OTPPrompter interface {
	PromptOTP(ctx context.Context, account string) (string, error)
}

type Patcher interface {
	ApplyPatches(ctx context.Context, req patch.Request) error
}

type GameManager interface {
	Launch(ctx context.Context, req game.LaunchRequest) (*game.Handle, error)
	SuperviseAddons(ctx context.Context, h *game.Handle, addons []game.Addon) (int, error)
}

type EnvBuilder interface {
	Build(raw string) launchenv.Environment
}

type Dependencies struct {
	Auth       AuthAPI
	Injector   Injector
	NewCaptcha func() CaptchaService
	Codes      CodeSource
	Prompter   OTPPrompter
	Patcher    Patcher
	Games      GameManager
	EnvBuilder EnvBuilder
	Notifier   notify.Notifier
}

type Status struct {
	Stage     Stage
	Account   string
	AttemptID string
}

type Orchestrator struct {
	logger *slog.Logger
	deps   Dependencies

	publish         func(event.Event)
	validateRuntime func(path string) error
	beforeExit      func()
	exit            func(code int)

	running   atomic.Bool
	status    Status
	statusMux sync.RWMutex
}

type Option func(*Orchestrator)

func WithPublisher(fn func(event.Event)) Option {
	return func(o *Orchestrator) { o.publish = fn }
}

// WithExit replaces os.Exit for fatal aborts. beforeExit runs first, usually
// to flush logs.
func WithExit(beforeExit func(), exit func(code int)) Option {
	return func(o *Orchestrator) {
		o.beforeExit = beforeExit
		o.exit = exit
	}
}

func WithRuntimeValidator(fn func(path string) error) Option {
	return func(o *Orchestrator) { o.validateRuntime = fn }
}

func NewOrchestrator(logger *slog.Logger, deps Dependencies, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:          logger,
		deps:            deps,
		publish:         event.Send,
		validateRuntime: launchenv.ValidateRuntime,
		exit:            os.Exit,
		status:          Status{Stage: StageIdle},
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Status returns the current stage (thread-safe).
func (o *Orchestrator) Status() Status {
	o.statusMux.RLock()
	defer o.statusMux.RUnlock()
	return o.status
}

// Login runs one attempt for sc with the given action. A call made while an
// attempt is in flight returns OutcomeBusy without side effects. The returned
// error is only set for failures the caller has to handle itself.
func (o *Orchestrator) Login(ctx context.Context, sc Context, action Action) (Outcome, error) {
	if !o.running.CompareAndSwap(false, true) {
		return OutcomeBusy, nil
	}
	defer o.running.Store(false)

	sc.Action = action
	if sc.AttemptID == "" {
		sc.AttemptID = uuid.NewString()
	}

	o.logger.Info("Login attempt started",
		slog.String("account", sc.Account),
		slog.String("action", action.String()),
		slog.String("attempt", sc.AttemptID),
	)

	outcome, err := o.run(ctx, sc)

	switch outcome {
	case OutcomeCompleted:
		o.setStage(sc, StageCompleted, "Game exited")
	case OutcomeFatalAbort:
		o.setStage(sc, StageFatalAbort, "Aborting")
		o.logger.Error("Fatal failure, terminating", slog.Any("error", err))
		if o.beforeExit != nil {
			o.beforeExit()
		}
		o.exit(1)
	default:
		o.setStage(sc, StageRecovered, "Ready")
	}
	o.setStage(sc, StageIdle, "")

	return outcome, err
}

type stageFunc func(ctx context.Context, sc Context) (Context, error)

func (o *Orchestrator) run(ctx context.Context, sc Context) (Outcome, error) {
	stages := []struct {
		stage Stage
		msg   string
		fn    stageFunc
	}{
		{StageCollectingCredentials, "Collecting credentials", o.collectCredentials},
		{StageAcquiringCaptcha, "Waiting for verification", o.acquireCaptcha},
		{StageAuthenticating, "Logging in", o.authenticate},
		{StageCheckingVersion, "Checking game version", o.checkVersion},
	}

	var err error
	for _, s := range stages {
		o.setStage(sc, s.stage, s.msg)
		if sc, err = s.fn(ctx, sc); err != nil {
			return o.fail(ctx, sc, s.stage, err)
		}
	}

	if len(sc.PendingPatches) > 0 {
		o.setStage(sc, StagePatching, fmt.Sprintf("Installing %d patches", len(sc.PendingPatches)))
		if err := o.applyPatches(ctx, sc); err != nil {
			return o.fail(ctx, sc, StagePatching, err)
		}
	}

	if !sc.Action.Launches() {
		o.reportMaintenanceDone(ctx, sc)
		return OutcomeRecovered, nil
	}

	if sc.Action.usesPluginRuntime() {
		o.setStage(sc, StageGatingRuntimeInjection, "Checking plugin runtime")
		if err := o.gateRuntime(ctx, sc); err != nil {
			if errors.Is(err, ErrRuntimeInjectionUnavailable) {
				o.notifyError(ctx, sc, "Plugin runtime unavailable", err.Error())
				return OutcomeRecovered, err
			}
			return o.fail(ctx, sc, StageGatingRuntimeInjection, err)
		}
	}

	o.setStage(sc, StageLaunching, "Starting game")
	handle, err := o.launch(ctx, sc)
	if err != nil {
		if errors.Is(err, launchenv.ErrLaunchEnvironmentInvalid) || errors.Is(err, game.ErrSpawnFailed) {
			return o.fail(ctx, sc, StageLaunching, err)
		}
		o.logger.Error("Unexpected error launching the game", slog.Any("error", err))
		return OutcomeRecovered, err
	}

	o.setStage(sc, StageSupervising, "Game running")
	exitCode, err := o.deps.Games.SuperviseAddons(ctx, handle, sc.Settings.Addons)
	if err != nil {
		return o.fail(ctx, sc, StageSupervising, err)
	}
	o.publish(event.GameExited(event.Text(sc.Account, "Game exited"), handle.PID, exitCode))

	return OutcomeCompleted, nil
}

func (o *Orchestrator) collectCredentials(ctx context.Context, sc Context) (Context, error) {
	if sc.Credentials.Username == "" || sc.Credentials.Password == "" {
		return sc, errMissingCredentials
	}
	if !sc.Credentials.OTPEnabled {
		return sc, nil
	}

	if sc.Settings.AutoFillOTP && o.deps.Codes != nil && o.deps.Codes.Configured() {
		code, _, err := o.deps.Codes.Current()
		if err == nil {
			return sc.withOTP(code), nil
		}
		o.logger.Warn("Auto-fill one-time code unavailable, asking the user", slog.Any("error", err))
	}

	if o.deps.Prompter == nil {
		return sc, ErrOTPRequired
	}
	code, err := o.deps.Prompter.PromptOTP(ctx, sc.Account)
	if err != nil {
		return sc, err
	}
	if code == "" {
		return sc, ErrUserCancelled
	}

	return sc.withOTP(code), nil
}

func (o *Orchestrator) acquireCaptcha(ctx context.Context, sc Context) (Context, error) {
	if !sc.Settings.CaptchaEnabled || o.deps.NewCaptcha == nil {
		return sc, nil
	}

	token, err := o.deps.NewCaptcha().Acquire(ctx)
	switch {
	case err == nil:
		return sc.withCaptchaToken(token), nil
	case errors.Is(err, captcha.ErrNoBrowser):
		return sc, ErrVerificationUnavailable
	case errors.Is(err, captcha.ErrTimeout):
		return sc, ErrVerificationTimeout
	case errors.Is(err, context.Canceled):
		return sc, ErrUserCancelled
	default:
		return sc, fmt.Errorf("%w: %w", ErrVerificationUnavailable, err)
	}
}

func (o *Orchestrator) authenticate(ctx context.Context, sc Context) (Context, error) {
	res, err := o.deps.Auth.Login(ctx, sc.Credentials.Username, sc.Credentials.Password, sc.OTP, sc.CaptchaToken)
	if err != nil {
		return sc, fmt.Errorf("login request failed: %w", err)
	}
	if !res.Usable() {
		msg := ""
		if res.ErrorMessage != nil {
			msg = *res.ErrorMessage
		}
		return sc, &AuthRejectedError{ServerMessage: msg}
	}

	return sc.withSessionID(*res.SessionID), nil
}

func (o *Orchestrator) checkVersion(ctx context.Context, sc Context) (Context, error) {
	res, err := o.deps.Auth.CheckVersion(ctx, sc.Settings.GamePath)
	if err != nil {
		return sc, fmt.Errorf("%w: %w", ErrVersionCheckFailed, err)
	}
	if res.State == NeedsPatch && len(res.PendingPatches) > 0 {
		return sc.withPendingPatches(res.PendingPatches), nil
	}

	return sc.withPendingPatches(nil), nil
}

func (o *Orchestrator) applyPatches(ctx context.Context, sc Context) error {
	for _, batch := range repositoryBatches(sc.PendingPatches) {
		err := o.deps.Patcher.ApplyPatches(ctx, patch.Request{
			Account:    sc.Account,
			Repository: batch[0].Repository,
			Pending:    batch,
			SessionID:  sc.SessionID,
			Resume:     true,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) gateRuntime(ctx context.Context, sc Context) error {
	if err := o.deps.Injector.CheckCompatibility(ctx); err != nil {
		if errors.Is(err, ErrMissingRedistributables) || errors.Is(err, ErrUnsupportedArchitecture) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrRuntimeInjectionUnavailable, err)
	}

	state, err := o.deps.Injector.HoldForUpdate(ctx, sc.Settings.GamePath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntimeInjectionUnavailable, err)
	}
	if state != InjectorOK {
		return fmt.Errorf("%w: runtime %s", ErrRuntimeInjectionUnavailable, state)
	}

	return nil
}

func (o *Orchestrator) launch(ctx context.Context, sc Context) (*game.Handle, error) {
	if sc.Settings.Runner == game.RunnerWine {
		if err := o.validateRuntime(sc.Settings.RuntimePath); err != nil {
			return nil, err
		}
	}

	env := o.deps.EnvBuilder.Build(sc.Settings.LaunchArgs)
	handle, err := o.deps.Games.Launch(ctx, game.LaunchRequest{
		Runner:    sc.Settings.Runner,
		SessionID: sc.SessionID,
		GamePath:  sc.Settings.GamePath,
		DPIMode:   sc.Settings.DPIMode,
		ExtraArgs: sc.Settings.ExtraArgs,
		Env:       env,
	})
	if err != nil {
		return nil, err
	}

	if sc.Action.usesPluginRuntime() {
		opts := InjectOptions{
			NoPlugins:           sc.Action == ActionNoPlugins,
			NoThirdPartyPlugins: sc.Action == ActionNoThirdPartyPlugins,
		}
		if err := o.deps.Injector.Inject(ctx, handle.PID, opts); err != nil {
			o.logger.Warn("Plugin runtime injection failed", slog.Any("error", err))
			o.notifyError(ctx, sc, "Plugin runtime", "The game is running without plugins: "+err.Error())
		}
	}

	return handle, nil
}

func (o *Orchestrator) reportMaintenanceDone(ctx context.Context, sc Context) {
	msg := "The game files are up to date."
	if len(sc.PendingPatches) > 0 {
		msg = fmt.Sprintf("%d patches installed, the game files are up to date.", len(sc.PendingPatches))
	}
	title := "Repair finished"
	if sc.Action == ActionVersionCheck {
		title = "Version check finished"
	}
	o.notify(ctx, sc, title, msg, event.SeverityInfo)
}

// fail surfaces err to the user and picks the outcome. Fatal patch failures
// abort the application, a cancelled attempt returns silently.
func (o *Orchestrator) fail(ctx context.Context, sc Context, stage Stage, err error) (Outcome, error) {
	if errors.Is(err, ErrUserCancelled) || errors.Is(err, context.Canceled) {
		o.logger.Info("Login attempt cancelled", slog.String("stage", string(stage)))
		return OutcomeRecovered, nil
	}

	title, body := describe(stage, err)
	o.logger.Warn("Login stage failed", slog.String("stage", string(stage)), slog.Any("error", err))

	if patch.IsFatal(err) {
		o.notify(ctx, sc, title, body, event.SeverityFatal)
		return OutcomeFatalAbort, err
	}

	o.notify(ctx, sc, title, body, event.SeverityError)
	return OutcomeRecovered, nil
}

func (o *Orchestrator) notifyError(ctx context.Context, sc Context, title, body string) {
	o.notify(ctx, sc, title, body, event.SeverityError)
}

func (o *Orchestrator) notify(ctx context.Context, sc Context, title, body string, severity event.Severity) {
	if o.deps.Notifier == nil {
		return
	}
	// the notification must be shown even when the attempt was cancelled
	err := o.deps.Notifier.Notify(context.WithoutCancel(ctx), notify.Message{
		Account:  sc.Account,
		Title:    title,
		Body:     body,
		Severity: severity,
	})
	if err != nil {
		o.logger.Warn("Error notifying user", slog.Any("error", err))
	}
}

func (o *Orchestrator) setStage(sc Context, stage Stage, msg string) {
	o.statusMux.Lock()
	o.status = Status{Stage: stage, Account: sc.Account, AttemptID: sc.AttemptID}
	if stage == StageIdle {
		o.status = Status{Stage: StageIdle}
	}
	o.statusMux.Unlock()

	if stage != StageIdle {
		o.logger.Debug("Login stage", slog.String("stage", string(stage)), slog.String("account", sc.Account))
		o.publish(event.StageChanged(event.Text(sc.Account, msg), string(stage)))
	}
}
