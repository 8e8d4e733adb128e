package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/liveqa/internal/fanout"
	"github.com/alfredjeanlab/liveqa/internal/idgen"
	"github.com/alfredjeanlab/liveqa/internal/model"
	"github.com/alfredjeanlab/liveqa/internal/notify"
	"github.com/alfredjeanlab/liveqa/internal/store"
	"github.com/alfredjeanlab/liveqa/internal/viewers"
)

// FanoutService is the health service name that follows the bus connection.
const FanoutService = "liveqa.fanout"

// createAttempts bounds how many fresh tokens CreateEvent tries when a
// generated token is already taken.
const createAttempts = 3

// QAServer is the mutation service. Every change is a read-modify-write
// through store.Mutate followed by a publish on the bus, so that the routers
// of all processes push the change to their connections.
type QAServer struct {
	store   store.Store
	bus     fanout.Bus
	router  *notify.Router
	counter viewers.Counter
	health  *health.Server
	logger  *slog.Logger
	now     func() time.Time
}

// Options wires a QAServer. Store and Bus are required.
type Options struct {
	Store   store.Store
	Bus     fanout.Bus
	Counter viewers.Counter
	Logger  *slog.Logger
}

// NewQAServer builds the service and points the bus at a fresh router.
func NewQAServer(opts Options) *QAServer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counter := opts.Counter
	if counter == nil {
		counter = viewers.NewMemory()
	}
	s := &QAServer{
		store:   opts.Store,
		bus:     opts.Bus,
		router:  notify.NewRouter(counter, logger),
		counter: counter,
		health:  health.NewServer(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.bus.SetReceiver(s.router.OnEventChanged)
	s.health.SetServingStatus(FanoutService, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Router returns the notification router fed by the bus.
func (s *QAServer) Router() *notify.Router { return s.router }

// Health returns the gRPC health server.
func (s *QAServer) Health() *health.Server { return s.health }

// SetFanoutStatus records the bus connection state. It has the shape of
// fanout.NATSOptions.OnStatus.
func (s *QAServer) SetFanoutStatus(connected bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !connected {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(FanoutService, st)
}

// FanoutServing reports whether the bus was last seen connected.
func (s *QAServer) FanoutServing() bool {
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: FanoutService})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// mutate runs fn in a read-modify-write cycle and announces the change.
func (s *QAServer) mutate(ctx context.Context, token, payload string, fn func(*model.Event) error) (*model.Record, error) {
	if token == "" {
		return nil, inputError("token is required")
	}
	rec, err := store.Mutate(ctx, s.store, token, fn)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, token, payload)
	return rec, nil
}

// CreateEvent stores a new open event under fresh tokens. The returned event
// carries the moderator token; it is the only response that does.
func (s *QAServer) CreateEvent(ctx context.Context, info model.Info) (*model.Event, error) {
	if err := model.ValidateInfo(info); err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		public, moderator, err := idgen.Pair()
		if err != nil {
			return nil, err
		}
		ev := model.NewEvent(model.Tokens{Public: public, Moderator: moderator}, info, s.now())
		rec, err := store.Create(ctx, s.store, ev)
		if errors.Is(err, store.ErrExists) && attempt < createAttempts {
			s.logger.Warn("token collision, retrying", "token", public)
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("event created", "token", public)
		return rec.Event, nil
	}
}

// GetEvent returns the audience view of an event. Deleted events are not
// found.
func (s *QAServer) GetEvent(ctx context.Context, token string) (*model.Event, error) {
	if token == "" {
		return nil, inputError("token is required")
	}
	rec, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec.Event.IsDeleted() {
		return nil, store.ErrNotFound
	}
	return rec.Event.Public(), nil
}

// EventPatch is a partial update of event metadata. Nil fields are left
// unchanged.
type EventPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
}

func (p EventPatch) empty() bool {
	return p.Name == nil && p.Description == nil && p.Color == nil
}

func (p EventPatch) apply(info model.Info) model.Info {
	if p.Name != nil {
		info.Name = *p.Name
	}
	if p.Description != nil {
		info.Description = *p.Description
	}
	if p.Color != nil {
		info.Color = *p.Color
	}
	return info
}

func (s *QAServer) EditEvent(ctx context.Context, token string, patch EventPatch) (*model.Event, error) {
	if patch.empty() {
		return nil, inputError("at least one of name, description, color is required")
	}
	rec, err := s.mutate(ctx, token, fanout.PayloadEvent, func(ev *model.Event) error {
		return ev.EditInfo(patch.apply(ev.Info), s.now())
	})
	if err != nil {
		return nil, err
	}
	return rec.Event.Public(), nil
}

func (s *QAServer) SetState(ctx context.Context, token string, state model.State) (*model.Event, error) {
	rec, err := s.mutate(ctx, token, fanout.PayloadState, func(ev *model.Event) error {
		return ev.SetState(state, s.now())
	})
	if err != nil {
		return nil, err
	}
	return rec.Event.Public(), nil
}

// DeleteEvent soft-deletes an event. Deleting an already deleted event is
// not an error.
func (s *QAServer) DeleteEvent(ctx context.Context, token string) error {
	_, err := s.mutate(ctx, token, fanout.PayloadDeleted, func(ev *model.Event) error {
		ev.Delete(s.now())
		return nil
	})
	return err
}

// SetPassword sets the viewer password; nil or empty clears it.
func (s *QAServer) SetPassword(ctx context.Context, token string, pw *string) error {
	_, err := s.mutate(ctx, token, fanout.PayloadEvent, func(ev *model.Event) error {
		return ev.SetPassword(pw, s.now())
	})
	return err
}

func (s *QAServer) AddTag(ctx context.Context, token, name string) (model.Tag, error) {
	var tag model.Tag
	_, err := s.mutate(ctx, token, fanout.PayloadTags, func(ev *model.Event) error {
		var err error
		tag, err = ev.AddTag(name, s.now())
		return err
	})
	return tag, err
}

func (s *QAServer) RemoveTag(ctx context.Context, token string, id int) error {
	_, err := s.mutate(ctx, token, fanout.PayloadTags, func(ev *model.Event) error {
		return ev.RemoveTag(id, s.now())
	})
	return err
}

func (s *QAServer) AddContextLink(ctx context.Context, token string, link model.ContextLink) error {
	_, err := s.mutate(ctx, token, fanout.PayloadEvent, func(ev *model.Event) error {
		return ev.AddContextLink(link, s.now())
	})
	return err
}

func (s *QAServer) RemoveContextLink(ctx context.Context, token string, index int) error {
	_, err := s.mutate(ctx, token, fanout.PayloadEvent, func(ev *model.Event) error {
		return ev.RemoveContextLink(index, s.now())
	})
	return err
}

// AddQuestion appends a question. The id is assigned inside the mutation, so
// a retried attempt picks the next free id of the fresh read.
func (s *QAServer) AddQuestion(ctx context.Context, token, text string, tag *int) (model.Question, error) {
	if token == "" {
		return model.Question{}, inputError("token is required")
	}
	var q model.Question
	rec, err := store.Mutate(ctx, s.store, token, func(ev *model.Event) error {
		var err error
		q, err = ev.AddQuestion(text, tag, s.now())
		return err
	})
	if err != nil {
		return model.Question{}, err
	}
	s.bus.Publish(ctx, rec.Token(), fanout.PayloadQuestion(q.ID))
	return q, nil
}

// changeQuestion applies fn to question id and returns its new value.
func (s *QAServer) changeQuestion(ctx context.Context, token string, id int, fn func(*model.Event) error) (model.Question, error) {
	rec, err := s.mutate(ctx, token, fanout.PayloadQuestion(id), fn)
	if err != nil {
		return model.Question{}, err
	}
	return rec.Event.Question(id)
}

func (s *QAServer) EditQuestion(ctx context.Context, token string, id int, text string) (model.Question, error) {
	return s.changeQuestion(ctx, token, id, func(ev *model.Event) error {
		return ev.EditQuestion(id, text, s.now())
	})
}

func (s *QAServer) LikeQuestion(ctx context.Context, token string, id int) (model.Question, error) {
	return s.changeQuestion(ctx, token, id, func(ev *model.Event) error {
		return ev.LikeQuestion(id, s.now())
	})
}

func (s *QAServer) UnlikeQuestion(ctx context.Context, token string, id int) (model.Question, error) {
	return s.changeQuestion(ctx, token, id, func(ev *model.Event) error {
		return ev.UnlikeQuestion(id, s.now())
	})
}

func (s *QAServer) SetQuestionFlags(ctx context.Context, token string, id int, flags model.QuestionFlags) (model.Question, error) {
	if flags.Empty() {
		return model.Question{}, inputError("at least one of hidden, answered, screening is required")
	}
	return s.changeQuestion(ctx, token, id, func(ev *model.Event) error {
		return ev.SetQuestionFlags(id, flags, s.now())
	})
}

func (s *QAServer) SetQuestionTag(ctx context.Context, token string, id int, tag *int) (model.Question, error) {
	return s.changeQuestion(ctx, token, id, func(ev *model.Event) error {
		return ev.SetQuestionTag(id, tag, s.now())
	})
}

// QuestionPatch is a partial update of a question. Text and Flags apply when
// set; Tag applies when SetTag is true, a nil Tag clearing it.
type QuestionPatch struct {
	Text   *string
	Flags  model.QuestionFlags
	SetTag bool
	Tag    *int
}

func (p QuestionPatch) empty() bool {
	return p.Text == nil && p.Flags.Empty() && !p.SetTag
}

// UpdateQuestion applies every part of patch in a single mutation.
func (s *QAServer) UpdateQuestion(ctx context.Context, token string, id int, patch QuestionPatch) (model.Question, error) {
	if patch.empty() {
		return model.Question{}, inputError("nothing to update")
	}
	return s.changeQuestion(ctx, token, id, func(ev *model.Event) error {
		now := s.now()
		if patch.Text != nil {
			if err := ev.EditQuestion(id, *patch.Text, now); err != nil {
				return err
			}
		}
		if !patch.Flags.Empty() {
			if err := ev.SetQuestionFlags(id, patch.Flags, now); err != nil {
				return err
			}
		}
		if patch.SetTag {
			return ev.SetQuestionTag(id, patch.Tag, now)
		}
		return nil
	})
}

func (s *QAServer) DeleteQuestion(ctx context.Context, token string, id int) error {
	_, err := s.mutate(ctx, token, fanout.PayloadQuestion(id), func(ev *model.Event) error {
		return ev.DeleteQuestion(id, s.now())
	})
	return err
}

// ViewerCount returns how many connections watch the event across all
// processes sharing the counter backend.
func (s *QAServer) ViewerCount(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, inputError("token is required")
	}
	return s.counter.Count(ctx, token), nil
}

// Close shuts down the bus and marks every health service as not serving.
func (s *QAServer) Close() error {
	s.health.Shutdown()
	if err := s.bus.Close(); err != nil {
		return fmt.Errorf("closing bus: %w", err)
	}
	return nil
}
