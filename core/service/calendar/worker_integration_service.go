package calendar

import (
	"context"
	"errors"
	"time"

	"booking_server/core/domain"
	"booking_server/core/port/in"
	"booking_server/core/port/out"
	"booking_server/core/service/mapping"
	"booking_server/core/service/reconcile"
	"booking_server/pkg/apperr"
	"booking_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Config tunes the lifecycle manager.
type Config struct {
	ProviderName     string
	ProviderTimeout  time.Duration
	LockWait         time.Duration
	DisconnectWait   time.Duration
	PassTimeout      time.Duration // must stay below the lock TTL
	ImportHorizon    time.Duration
	WatchRenewWindow time.Duration
	ClosureKeywords  []string
}

func (c *Config) setDefaults() {
	if c.ProviderName == "" {
		c.ProviderName = "google_calendar"
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 20 * time.Second
	}
	if c.LockWait <= 0 {
		c.LockWait = 30 * time.Second
	}
	if c.DisconnectWait <= 0 {
		c.DisconnectWait = 5 * time.Minute
	}
	if c.PassTimeout <= 0 {
		c.PassTimeout = 4 * time.Minute
	}
	if c.ImportHorizon <= 0 {
		c.ImportHorizon = 90 * 24 * time.Hour
	}
	if c.WatchRenewWindow <= 0 {
		c.WatchRenewWindow = 24 * time.Hour
	}
}

// Dependencies are the outbound ports the manager drives. Producer and Notifier are optional.
type Dependencies struct {
	States       out.IntegrationRepository
	Mappings     out.MappingRepository
	Owners       out.OwnerDirectory
	Provider     out.CalendarProviderPort
	Credentials  out.CredentialSource
	Appointments out.AppointmentStore
	Closures     out.ClosureStore
	Watches      out.WatchChannelRepository
	Batches      out.EventBatchCache
	Locker       out.SyncLocker
	Notifier     out.OperatorNotifier
	Producer     out.MessageProducer
}

// Manager is the sync lifecycle manager. It owns IntegrationState; every transition goes through it.
type Manager struct {
	deps       Dependencies
	cfg        Config
	registry   *mapping.Registry
	classifier *reconcile.Classifier
	guard      *passGuard
	now        func() time.Time
}

var _ in.IntegrationService = (*Manager)(nil)

func NewManager(deps Dependencies, cfg Config) *Manager {
	cfg.setDefaults()
	return &Manager{
		deps:       deps,
		cfg:        cfg,
		registry:   mapping.NewRegistry(deps.Mappings, deps.Owners),
		classifier: reconcile.NewClassifier(cfg.ClosureKeywords...),
		guard:      newPassGuard(deps.Locker),
		now:        time.Now,
	}
}

// =============================================================================
// Wizard
// =============================================================================

// Connect consumes the credential validity signal and creates the state on first connection.
func (m *Manager) Connect(ctx context.Context, businessID uuid.UUID) (*domain.IntegrationState, error) {
	if _, err := m.token(ctx, businessID); err != nil {
		return nil, err
	}

	var state *domain.IntegrationState
	err := m.locked(ctx, businessID, m.cfg.LockWait, func(ctx context.Context) error {
		var err error
		state, err = m.deps.States.Get(ctx, businessID)
		if err != nil {
			return apperr.DatabaseError("get integration", err)
		}
		now := m.now()
		if state == nil {
			state = domain.NewIntegrationState(businessID, now)
		}
		if err := state.Connect(now); err != nil {
			return transitionErr(err)
		}
		return m.save(ctx, state)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[Manager.Connect] business %s connected", businessID)
	m.notify(ctx, domain.NewIntegrationChangedEvent(state))
	return state, nil
}

func (m *Manager) ListCalendars(ctx context.Context, businessID uuid.UUID) ([]domain.ProviderCalendar, error) {
	if _, err := m.connectedState(ctx, businessID); err != nil {
		return nil, err
	}
	token, err := m.token(ctx, businessID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ProviderTimeout)
	defer cancel()
	calendars, err := m.deps.Provider.ListCalendars(callCtx, token)
	if err != nil {
		return nil, m.providerErr(err)
	}
	return calendars, nil
}

func (m *Manager) SelectCalendars(ctx context.Context, businessID uuid.UUID, calendarIDs []string) (*domain.IntegrationState, error) {
	state, err := m.mutate(ctx, businessID, func(ctx context.Context, state *domain.IntegrationState) error {
		if err := state.SelectCalendars(calendarIDs, m.now()); err != nil {
			return transitionErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, domain.NewIntegrationChangedEvent(state))
	return state, nil
}

// ListOwners lists the employees or resources calendars can be mapped to, per the current mapping type.
func (m *Manager) ListOwners(ctx context.Context, businessID uuid.UUID) ([]domain.Owner, error) {
	state, err := m.connectedState(ctx, businessID)
	if err != nil {
		return nil, err
	}
	owners, err := m.deps.Owners.ListActiveOwners(ctx, businessID, state.MappingType)
	if err != nil {
		return nil, apperr.DatabaseError("list owners", err)
	}
	return owners, nil
}

// SetMappingType switches between employee and resource mapping. Existing entries are cleared.
func (m *Manager) SetMappingType(ctx context.Context, businessID uuid.UUID, kind domain.OwnerKind) (*domain.IntegrationState, error) {
	if !kind.Valid() {
		return nil, apperr.InvalidInput("mapping_type", "must be employee or resource")
	}
	return m.mutate(ctx, businessID, func(ctx context.Context, state *domain.IntegrationState) error {
		changed := state.MappingType != kind
		if err := state.SetMappingType(kind, m.now()); err != nil {
			return transitionErr(err)
		}
		if changed {
			return m.registry.Clear(ctx, businessID)
		}
		return nil
	})
}

func (m *Manager) SetMapping(ctx context.Context, businessID uuid.UUID, calendarID string, ownerID int64) error {
	var owner domain.OwnerRef
	err := m.locked(ctx, businessID, m.cfg.LockWait, func(ctx context.Context) error {
		state, err := m.connectedState(ctx, businessID)
		if err != nil {
			return err
		}
		if !state.IsSelected(calendarID) {
			return apperr.InvalidInput("calendar_id", "calendar is not selected")
		}
		owner = domain.OwnerRef{Kind: state.MappingType, ID: ownerID}
		return m.registry.SetMapping(ctx, businessID, calendarID, owner)
	})
	if err != nil {
		return err
	}
	logger.Info("[Manager.SetMapping] business %s: %s -> %s", businessID, calendarID, owner)
	return nil
}

// CompleteMapping passes the completeness gate and moves to mapped.
func (m *Manager) CompleteMapping(ctx context.Context, businessID uuid.UUID) (*domain.IntegrationState, error) {
	state, err := m.mutate(ctx, businessID, func(ctx context.Context, state *domain.IntegrationState) error {
		if _, err := m.registry.RequireComplete(ctx, businessID, state.SelectedCalendarIDs); err != nil {
			return err
		}
		return transitionErr(state.MarkMapped(m.now()))
	})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, domain.NewIntegrationChangedEvent(state))
	return state, nil
}

// =============================================================================
// Settings and status
// =============================================================================

func (m *Manager) SetStrategy(ctx context.Context, businessID uuid.UUID, req *in.StrategyRequest) (*domain.IntegrationState, error) {
	if !req.Strategy.Valid() {
		return nil, apperr.InvalidInput("strategy", "must be one of ask, external_wins, internal_wins, skip")
	}

	var state *domain.IntegrationState
	err := m.locked(ctx, businessID, m.cfg.LockWait, func(ctx context.Context) error {
		var err error
		if state, err = m.loadState(ctx, businessID); err != nil {
			return err
		}
		if err := state.SetStrategy(req.Strategy, req.Confirm, m.now()); err != nil {
			if errors.Is(err, domain.ErrConfirmationRequired) {
				return apperr.ConfirmationRequired(string(req.Strategy))
			}
			return apperr.BadRequest(err.Error())
		}
		return m.save(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("[Manager.SetStrategy] business %s strategy=%s", businessID, req.Strategy)
	return state, nil
}

func (m *Manager) GetStatus(ctx context.Context, businessID uuid.UUID) (*in.IntegrationStatus, error) {
	state, err := m.deps.States.Get(ctx, businessID)
	if err != nil {
		return nil, apperr.DatabaseError("get integration", err)
	}
	if state == nil {
		state = domain.NewIntegrationState(businessID, m.now())
	}

	current, err := m.registry.Mapping(ctx, businessID)
	if err != nil {
		return nil, err
	}
	watches, err := m.deps.Watches.ListWatches(ctx, businessID)
	if err != nil {
		return nil, apperr.DatabaseError("list watches", err)
	}

	return &in.IntegrationStatus{
		State:             state,
		Mapping:           current,
		UnmappedCalendars: current.Unmapped(state.SelectedCalendarIDs),
		EffectiveStrategy: state.EffectiveStrategy(),
		WatchCount:        len(watches),
	}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (m *Manager) loadState(ctx context.Context, businessID uuid.UUID) (*domain.IntegrationState, error) {
	state, err := m.deps.States.Get(ctx, businessID)
	if err != nil {
		return nil, apperr.DatabaseError("get integration", err)
	}
	if state == nil {
		return nil, apperr.NotFound("integration")
	}
	return state, nil
}

func (m *Manager) connectedState(ctx context.Context, businessID uuid.UUID) (*domain.IntegrationState, error) {
	state, err := m.loadState(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !state.Connected {
		return nil, apperr.InvalidTransition(string(state.Phase), string(domain.PhaseConnected)).
			WithDetail("reason", "integration is not connected")
	}
	return state, nil
}

// mutate applies fn to the connected state and saves it, holding the business lock so that
// a running pass cannot overwrite the change with its own copy of the state.
func (m *Manager) mutate(ctx context.Context, businessID uuid.UUID, fn func(ctx context.Context, state *domain.IntegrationState) error) (*domain.IntegrationState, error) {
	var state *domain.IntegrationState
	err := m.locked(ctx, businessID, m.cfg.LockWait, func(ctx context.Context) error {
		var err error
		if state, err = m.connectedState(ctx, businessID); err != nil {
			return err
		}
		if err := fn(ctx, state); err != nil {
			return err
		}
		return m.save(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (m *Manager) save(ctx context.Context, state *domain.IntegrationState) error {
	if err := m.deps.States.Save(ctx, state); err != nil {
		return apperr.DatabaseError("save integration", err)
	}
	return nil
}

func (m *Manager) token(ctx context.Context, businessID uuid.UUID) (*oauth2.Token, error) {
	token, err := m.deps.Credentials.Token(ctx, businessID)
	if err != nil {
		if apperr.IsAppError(err) {
			return nil, err
		}
		return nil, apperr.AuthorizationExpired(m.cfg.ProviderName, err)
	}
	return token, nil
}

// providerErr maps whatever the provider returned onto the error taxonomy.
func (m *Manager) providerErr(err error) error {
	switch {
	case apperr.IsAppError(err):
		return err
	case errors.Is(err, context.Canceled):
		return err
	default:
		return apperr.ProviderUnavailable(m.cfg.ProviderName, err)
	}
}

func (m *Manager) notify(ctx context.Context, event *domain.RealtimeEvent) {
	if m.deps.Notifier == nil || event == nil {
		return
	}
	if err := m.deps.Notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		logger.WithError(err).Warn("[Manager.notify] %s for business %s not delivered", event.Type, event.BusinessID)
	}
}

func transitionErr(err error) error {
	var te *domain.TransitionError
	if errors.As(err, &te) {
		appErr := apperr.InvalidTransition(string(te.From), string(te.To))
		if te.Reason != "" {
			appErr = appErr.WithDetail("reason", te.Reason)
		}
		return appErr.WithError(err)
	}
	return err
}
