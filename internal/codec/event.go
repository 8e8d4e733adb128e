package codec

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

// Event field names.
const (
	evPublicToken    = "publicToken"
	evModeratorToken = "moderatorToken"
	evName           = "name"
	evDescription    = "description"
	evColor          = "color"
	evState          = "state"
	evQuestions      = "questions"
	evTags           = "tags"
	evPassword       = "password"
	evPremium        = "premium"
	evContextLinks   = "contextLinks"
	evCreatedAt      = "createdAt"
	evLastEdit       = "lastEdit"
	evDeletedAt      = "deletedAt"

	// evLegacyPremiumOrder is the flat premium field written before
	// formatTypedPremium. It is only ever read.
	evLegacyPremiumOrder = "premiumOrder"
)

// Question field names.
const (
	qID        = "id"
	qText      = "text"
	qLikes     = "likes"
	qCreatedAt = "createdAt"
	qHidden    = "hidden"
	qAnswered  = "answered"
	qScreening = "screening"
	qTag       = "tag"
)

func encodeEvent(e *model.Event) *structpb.Value {
	m := map[string]*structpb.Value{
		evPublicToken: str(e.Tokens.Public),
		evName:        str(e.Info.Name),
		evState:       str(string(e.State)),
		evQuestions:   encodeQuestions(e.Questions),
		evCreatedAt:   timestamp(e.CreatedAt),
		evLastEdit:    timestamp(e.LastEdit),
	}
	if e.Tokens.Moderator != "" {
		m[evModeratorToken] = str(e.Tokens.Moderator)
	}
	if e.Info.Description != "" {
		m[evDescription] = str(e.Info.Description)
	}
	if e.Info.Color != "" {
		m[evColor] = str(e.Info.Color)
	}
	if e.Tags != nil {
		tags := make([]*structpb.Value, len(e.Tags))
		for i, t := range e.Tags {
			tags[i] = object(map[string]*structpb.Value{
				"id":   num(t.ID),
				"name": str(t.Name),
			})
		}
		m[evTags] = list(tags)
	}
	if e.Password != nil {
		m[evPassword] = str(*e.Password)
	}
	if e.Premium != nil {
		m[evPremium] = object(map[string]*structpb.Value{
			"kind": str(string(e.Premium.Kind)),
			"id":   str(e.Premium.ID),
		})
	}
	if e.ContextLinks != nil {
		links := make([]*structpb.Value, len(e.ContextLinks))
		for i, l := range e.ContextLinks {
			lm := map[string]*structpb.Value{"url": str(l.URL)}
			if l.Title != "" {
				lm["title"] = str(l.Title)
			}
			links[i] = object(lm)
		}
		m[evContextLinks] = list(links)
	}
	if e.DeletedAt != nil {
		m[evDeletedAt] = timestamp(*e.DeletedAt)
	}
	return object(m)
}

func encodeQuestions(qs []model.Question) *structpb.Value {
	vs := make([]*structpb.Value, len(qs))
	for i, q := range qs {
		m := map[string]*structpb.Value{
			qID:        num(q.ID),
			qText:      str(q.Text),
			qLikes:     num(q.Likes),
			qCreatedAt: timestamp(q.CreatedAt),
		}
		if q.Hidden {
			m[qHidden] = boolean(true)
		}
		if q.Answered {
			m[qAnswered] = boolean(true)
		}
		if q.Screening {
			m[qScreening] = boolean(true)
		}
		if q.Tag != nil {
			m[qTag] = num(*q.Tag)
		}
		vs[i] = object(m)
	}
	return list(vs)
}

// decodeEvent reads the current event shape and then applies the legacy
// migrations the item's format calls for.
func decodeEvent(f fields, format uint32) (*model.Event, error) {
	e, err := decodeCurrentEvent(f, format)
	if err != nil {
		return nil, err
	}
	if format < formatTypedPremium {
		if err := migrateLegacyPremium(f, e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// migrateLegacyPremium hoists the flat premiumOrder string into the typed
// premium field. A typed value, if somehow present, wins.
func migrateLegacyPremium(f fields, e *model.Event) error {
	order, ok, err := f.optStr(evLegacyPremiumOrder)
	if err != nil {
		return err
	}
	if !ok || order == "" || e.Premium != nil {
		return nil
	}
	e.Premium = &model.PremiumOrder{Kind: model.PremiumPaypal, ID: order}
	return nil
}

func decodeCurrentEvent(f fields, format uint32) (*model.Event, error) {
	var (
		e   model.Event
		err error
	)
	if e.Tokens.Public, err = f.str(evPublicToken); err != nil {
		return nil, err
	}
	if e.Tokens.Moderator, _, err = f.optStr(evModeratorToken); err != nil {
		return nil, err
	}
	if e.Info.Name, err = f.str(evName); err != nil {
		return nil, err
	}
	if e.Info.Description, _, err = f.optStr(evDescription); err != nil {
		return nil, err
	}
	if e.Info.Color, _, err = f.optStr(evColor); err != nil {
		return nil, err
	}

	state, err := f.str(evState)
	if err != nil {
		return nil, err
	}
	e.State = model.State(state)
	if !e.State.IsValid() {
		return nil, malformed(f.name(evState), "unknown state "+state)
	}

	if e.CreatedAt, err = f.timestamp(evCreatedAt); err != nil {
		return nil, err
	}
	if e.LastEdit, err = f.timestamp(evLastEdit); err != nil {
		return nil, err
	}
	if e.DeletedAt, err = f.optTimestamp(evDeletedAt); err != nil {
		return nil, err
	}

	if e.Questions, err = decodeQuestions(f, format, e.CreatedAt); err != nil {
		return nil, err
	}
	if e.Tags, err = decodeTags(f); err != nil {
		return nil, err
	}
	if e.ContextLinks, err = decodeContextLinks(f); err != nil {
		return nil, err
	}

	if pw, ok, err := f.optStr(evPassword); err != nil {
		return nil, err
	} else if ok {
		e.Password = &pw
	}

	if pf, ok, err := f.optSub(evPremium); err != nil {
		return nil, err
	} else if ok {
		kind, err := pf.str("kind")
		if err != nil {
			return nil, err
		}
		id, err := pf.str("id")
		if err != nil {
			return nil, err
		}
		e.Premium = &model.PremiumOrder{Kind: model.PremiumKind(kind), ID: id}
		if !e.Premium.Kind.IsValid() {
			return nil, malformed(pf.name("kind"), "unknown premium kind "+kind)
		}
	}

	return &e, nil
}

func decodeQuestions(f fields, format uint32, eventCreated time.Time) ([]model.Question, error) {
	vs, err := f.list(evQuestions)
	if err != nil {
		return nil, err
	}
	qs := make([]model.Question, 0, len(vs))
	for i, v := range vs {
		qf, err := f.element(evQuestions, i, v)
		if err != nil {
			return nil, err
		}
		q, err := decodeQuestion(qf, format, eventCreated)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, nil
}

func decodeQuestion(f fields, format uint32, eventCreated time.Time) (model.Question, error) {
	var (
		q   model.Question
		err error
	)
	id, err := f.integer(qID)
	if err != nil {
		return q, err
	}
	q.ID = int(id)
	if q.Text, err = f.str(qText); err != nil {
		return q, err
	}
	likes, ok, err := f.optInteger(qLikes)
	if err != nil {
		return q, err
	}
	if ok {
		q.Likes = int(likes)
	}
	if format < formatQuestionTimes {
		created, err := f.optTimestamp(qCreatedAt)
		if err != nil {
			return q, err
		}
		q.CreatedAt = eventCreated
		if created != nil {
			q.CreatedAt = *created
		}
	} else if q.CreatedAt, err = f.timestamp(qCreatedAt); err != nil {
		return q, err
	}
	if q.Hidden, err = f.boolean(qHidden); err != nil {
		return q, err
	}
	if q.Answered, err = f.boolean(qAnswered); err != nil {
		return q, err
	}
	if q.Screening, err = f.boolean(qScreening); err != nil {
		return q, err
	}
	if tag, ok, err := f.optInteger(qTag); err != nil {
		return q, err
	} else if ok {
		t := int(tag)
		q.Tag = &t
	}
	return q, nil
}

func decodeTags(f fields) ([]model.Tag, error) {
	vs, ok, err := f.optList(evTags)
	if err != nil || !ok {
		return nil, err
	}
	tags := make([]model.Tag, 0, len(vs))
	for i, v := range vs {
		tf, err := f.element(evTags, i, v)
		if err != nil {
			return nil, err
		}
		id, err := tf.integer("id")
		if err != nil {
			return nil, err
		}
		name, err := tf.str("name")
		if err != nil {
			return nil, err
		}
		tags = append(tags, model.Tag{ID: int(id), Name: name})
	}
	return tags, nil
}

func decodeContextLinks(f fields) ([]model.ContextLink, error) {
	vs, ok, err := f.optList(evContextLinks)
	if err != nil || !ok {
		return nil, err
	}
	links := make([]model.ContextLink, 0, len(vs))
	for i, v := range vs {
		lf, err := f.element(evContextLinks, i, v)
		if err != nil {
			return nil, err
		}
		u, err := lf.str("url")
		if err != nil {
			return nil, err
		}
		title, _, err := lf.optStr("title")
		if err != nil {
			return nil, err
		}
		links = append(links, model.ContextLink{URL: u, Title: title})
	}
	return links, nil
}
