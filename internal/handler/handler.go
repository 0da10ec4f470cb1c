package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goodieshq/bitbridge/internal/protocol"
	"github.com/goodieshq/bitbridge/internal/protocol/packets/v1"
	"github.com/goodieshq/bitbridge/internal/session"
	"github.com/goodieshq/bitbridge/internal/translate"
	"github.com/rs/zerolog/log"
)

// Payload slots of a HELLO packet
const (
	helloSchoolSlot = 1
	helloHubSlot    = 2
)

// Resolver turns a REST query into a scalar value
type Resolver interface {
	Resolve(ctx context.Context, service string, m *translate.Method, query string, sess session.Snapshot) (packets.Value, error)
}

// Handler dispatches decoded hub packets by request type and builds the
// response packet
type Handler struct {
	store    *translate.Store
	resolver Resolver
	session  *session.State
}

type HandlerOpts struct {
	Store    *translate.Store
	Resolver Resolver
	Session  *session.State
}

func NewHandler(opts HandlerOpts) *Handler {
	if opts.Store == nil {
		opts.Store = translate.NewStore()
	}
	if opts.Session == nil {
		opts.Session = session.New()
	}
	if opts.Resolver == nil {
		opts.Resolver = translate.NewResolver(translate.ResolverOpts{})
	}
	return &Handler{
		store:    opts.Store,
		resolver: opts.Resolver,
		session:  opts.Session,
	}
}

// Handle processes one request. HELLO is tested first, then REST (GET or
// POST), then CLOUD_VARIABLE and BROADCAST.
func (h *Handler) Handle(ctx context.Context, req *packets.Packet) (*packets.Packet, error) {
	log.Debug().
		Uint8("app_id", req.AppID).
		Uint8("namespace_id", req.NamespaceID).
		Uint16("uid", req.UID).
		Str("type", req.RequestType.String()).
		Str("query", req.Query()).
		Msg("Handling request")

	switch {
	case req.HasBit(protocol.RequestHello):
		return h.handleHello(req)
	case req.HasBit(protocol.RequestGet | protocol.RequestPost):
		return h.handleRest(ctx, req)
	case req.HasBit(protocol.RequestCloudVariable):
		return nil, fmt.Errorf("cloud variable: %w", ErrUnimplemented)
	case req.HasBit(protocol.RequestBroadcast):
		return nil, fmt.Errorf("broadcast: %w", ErrUnimplemented)
	default:
		return nil, ErrUnrecognised
	}
}

func (h *Handler) handleHello(req *packets.Packet) (*packets.Packet, error) {
	schoolID := req.At(helloSchoolSlot).AsString()
	if schoolID == "" {
		return nil, ErrBadSchoolID
	}
	hubID := req.At(helloHubSlot).AsString()
	if hubID == "" {
		return nil, ErrBadHubID
	}

	h.session.SetHub(schoolID, hubID)
	log.Info().Str("school_id", schoolID).Str("hub_id", hubID).Msg("Hub bonded")

	resp := packets.NewResponse(req)
	resp.SetBit(protocol.RequestHello | protocol.StatusOK)
	resp.Append(packets.Int(0))
	return resp, nil
}

func (h *Handler) handleRest(ctx context.Context, req *packets.Packet) (*packets.Packet, error) {
	query := req.Query()
	service, _, _ := strings.Cut(strings.TrimPrefix(query, "/"), "/")

	table := h.store.Load()
	if table == nil {
		return nil, ErrNoTranslations
	}

	entry, ok := table.Lookup(service)
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrInvalidService, service)
	}

	method, ok := entry.Method(req.RequestType)
	if !ok {
		return nil, ErrInvalidRequestType
	}

	value, err := h.resolve(ctx, service, method, query)
	if err != nil {
		return nil, err
	}

	resp := packets.NewResponse(req)
	resp.Append(value)
	return resp, nil
}

// resolve calls the resolver, reporting anything other than a resolver
// failure as a generic REST error
func (h *Handler) resolve(ctx context.Context, service string, m *translate.Method, query string) (v packets.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("service", service).Msg("Resolver panicked")
			v, err = packets.Value{}, ErrRestRequest
		}
	}()

	v, err = h.resolver.Resolve(ctx, service, m, query, h.session.Snapshot())
	if err != nil {
		var terr *translate.Error
		if !errors.As(err, &terr) {
			return packets.Value{}, fmt.Errorf("%w: %v", ErrRestRequest, err)
		}
		return packets.Value{}, err
	}
	return v, nil
}
