// Package overseer implements the policy/coordination layer of spec.md
// §4.5: stream admission, balance debits, viewer accounting, Nostr
// lifecycle notifications, thumbnail persistence, and admin-block
// enforcement.
package overseer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/models"
	"github.com/jmylchreest/zapengine/internal/nostr"
	"github.com/jmylchreest/zapengine/internal/overseer/store"
	"github.com/jmylchreest/zapengine/internal/overseer/viewers"
	"github.com/jmylchreest/zapengine/internal/variant"
)

// Admission failure classes, per spec.md §4.5.
var (
	ErrEndpointNotFound    = errors.New("overseer: endpoint not found")
	ErrUserNotFound        = errors.New("overseer: user not found")
	ErrBlocked             = errors.New("overseer: user is blocked")
	ErrInsufficientBalance = errors.New("overseer: insufficient balance")
)

// Config holds the overseer's policy parameters, sourced from
// internal/config.OverseerConfig and internal/config.SegmentingConfig.
type Config struct {
	NodeName                string
	OutputDir               string
	PublicURL               string
	MinEventInterval        time.Duration
	LowBalanceThresholdMsat models.Money
	AdminPubkey             string
}

// Overseer is the policy/coordination layer. One instance is shared by
// every ingress listener and pipeline runner on a node.
type Overseer struct {
	cfg Config

	users     store.UserStore
	endpoints store.EndpointStore
	streams   store.StreamStore
	viewers   *viewers.Tracker
	publisher *nostr.Publisher
	engine    *variant.Engine
	registry  *Registry
	logger    *slog.Logger

	mu          sync.Mutex
	lastEventAt map[uuid.UUID]time.Time
}

// New constructs an Overseer from its collaborators.
func New(cfg Config, users store.UserStore, endpoints store.EndpointStore, streams store.StreamStore, viewerTracker *viewers.Tracker, publisher *nostr.Publisher, engine *variant.Engine, logger *slog.Logger) *Overseer {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = variant.New(logger, 0)
	}
	return &Overseer{
		cfg:         cfg,
		users:       users,
		endpoints:   endpoints,
		streams:     streams,
		viewers:     viewerTracker,
		publisher:   publisher,
		engine:      engine,
		registry:    NewRegistry(),
		logger:      logger,
		lastEventAt: make(map[uuid.UUID]time.Time),
	}
}

// Registry exposes the live-stream registry, e.g. to wire into
// internal/http/handlers' health surface.
func (o *Overseer) Registry() *Registry {
	return o.registry
}
