package intake

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/pkg/notion"
)

// Notion page statuses read and written by the intake sync.
const (
	NotionReady       = "Ready"
	NotionRouted      = "Routed"
	NotionNeedsReview = "Needs Review"
	NotionKilled      = "Killed"
	NotionFailed      = "Failed"
)

// Notion properties written back after routing.
const (
	propStatus       = "Status"
	propLastRouted   = "Last Routed"
	propRoutingID    = "Routing ID"
	propPublication  = "Publication"
	propRoutingError = "Routing Error"
)

// IdeaDatabase is the Notion access intake needs: list pages by filter and
// update page properties. *notion.Database satisfies it.
type IdeaDatabase interface {
	Pages(ctx context.Context, filter notionapi.Filter) ([]notionapi.Page, error)
	Update(ctx context.Context, pageID string, props notionapi.Properties) error
}

// NotionSource reads ideas from a Notion database and writes routing
// results back to their pages.
type NotionSource struct {
	db  IdeaDatabase
	now func() time.Time
	log *zap.Logger
}

// NewNotionSource creates a NotionSource over db.
func NewNotionSource(db IdeaDatabase) *NotionSource {
	return &NotionSource{
		db:  db,
		now: time.Now,
		log: zap.L().With(zap.String("component", "intake.notion")),
	}
}

// Fetch returns every page in Ready status as an idea. Pages that cannot be
// parsed are logged and skipped.
func (s *NotionSource) Fetch(ctx context.Context) ([]Idea, error) {
	pages, err := s.db.Pages(ctx, notion.StatusEquals(propStatus, NotionReady))
	if err != nil {
		return nil, eris.Wrap(err, "intake: fetch notion ideas")
	}

	ideas := make([]Idea, 0, len(pages))
	for _, p := range pages {
		idea, err := ParsePage(p)
		if err != nil {
			s.log.Warn("skipping notion page", zap.String("page_id", string(p.ID)), zap.Error(err))
			continue
		}
		ideas = append(ideas, idea)
	}
	return ideas, nil
}

// ParsePage maps a Notion idea page onto an Idea. The page id is the idea id.
func ParsePage(p notionapi.Page) (Idea, error) {
	idea := Idea{ID: string(p.ID), Ref: string(p.ID)}
	f := &idea.Facts

	for name, prop := range p.Properties {
		switch name {
		case "Name":
			if tp, ok := prop.(*notionapi.TitleProperty); ok {
				idea.Title = notion.PlainText(tp.Title)
			}
		case "Resource":
			f.Resource = selectName(prop)
		case "Length":
			f.EstimatedLength = selectName(prop)
		case "Time Sensitivity":
			f.TimeSensitivity = model.TimeSensitivity(strings.ToLower(strings.ReplaceAll(selectName(prop), " ", "_")))
		case "News Window":
			if dp, ok := prop.(*notionapi.DateProperty); ok && dp.Date != nil && dp.Date.Start != nil {
				f.NewsWindow = time.Time(*dp.Date.Start).Format(model.DateLayout)
			}
		case "Contrarian":
			if cp, ok := prop.(*notionapi.CheckboxProperty); ok {
				f.ContrarianAngle = cp.Checkbox
			}
		case "Format":
			f.Format = selectName(prop)
		case "Audiences":
			f.Audiences = multiSelect(prop)
		case "Tags":
			f.Tags = multiSelect(prop)
		case "Pillar":
			f.Pillar = selectName(prop)
		case "Source":
			if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
				f.Source = notion.PlainText(rtp.RichText)
			} else {
				f.Source = selectName(prop)
			}
		}
	}

	if idea.ID == "" {
		return idea, eris.New("page has no id")
	}
	return idea, nil
}

func selectName(prop notionapi.Property) string {
	if sp, ok := prop.(*notionapi.SelectProperty); ok {
		return sp.Select.Name
	}
	return ""
}

func multiSelect(prop notionapi.Property) []string {
	msp, ok := prop.(*notionapi.MultiSelectProperty)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(msp.MultiSelect))
	for _, o := range msp.MultiSelect {
		out = append(out, o.Name)
	}
	return out
}

// notionStatus is the page status reflecting an outcome.
func notionStatus(o Outcome) string {
	switch {
	case o.Err != nil:
		return NotionFailed
	case o.Routing.Status == model.StatusKilled:
		return NotionKilled
	case o.Routing.Status == model.StatusIntake:
		return NotionNeedsReview
	default:
		return NotionRouted
	}
}

// WriteBack records each outcome on its page: status, routing time, routing
// id and publication, or the error for failures. It returns the number of
// pages updated; update failures are logged and counted out.
func (s *NotionSource) WriteBack(ctx context.Context, outcomes []Outcome) int {
	updated := 0
	for _, o := range outcomes {
		if o.Idea.Ref == "" {
			continue
		}
		if err := s.db.Update(ctx, o.Idea.Ref, s.resultProperties(o)); err != nil {
			s.log.Error("notion write-back failed", zap.String("page_id", o.Idea.Ref), zap.Error(err))
			continue
		}
		updated++
	}
	return updated
}

func (s *NotionSource) resultProperties(o Outcome) notionapi.Properties {
	props := notionapi.Properties{
		propStatus:     notion.Status(notionStatus(o)),
		propLastRouted: notion.Date(s.now()),
	}
	if o.Err != nil {
		msg := o.Err.Error()
		if len(msg) > 200 {
			msg = msg[:200]
		}
		props[propRoutingError] = notion.Text(msg)
		return props
	}
	props[propRoutingID] = notion.Text(o.Routing.ID)
	props[propPublication] = notion.Text(o.Routing.RoutedTo)
	return props
}
