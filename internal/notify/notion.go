package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pipewarden/internal/model"
	"github.com/sells-group/pipewarden/pkg/notion"
)

// Notion files review cards into a Notion database for alerts that need a
// human decision. Only alerts flagged for review are posted; everything
// else is skipped silently.
type Notion struct {
	client notion.Client
	dbID   string
}

// NewNotion creates the Notion review channel.
func NewNotion(client notion.Client, reviewDB string) *Notion {
	return &Notion{client: client, dbID: reviewDB}
}

// Name implements Notifier.
func (n *Notion) Name() string { return "notion" }

// Dispatch implements Notifier.
func (n *Notion) Dispatch(ctx context.Context, alert model.AlertPayload) error {
	title := fmt.Sprintf("%s — %s", alert.Action, alert.CreatedAt.Format(time.RFC3339))

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(n.dbID),
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
			},
			"Priority": notionapi.SelectProperty{
				Select: notionapi.Option{Name: string(alert.Priority)},
			},
			"Decision ID": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: alert.DecisionID}}},
			},
			"Confidence": notionapi.NumberProperty{Number: alert.Confidence},
			"Urgent":     notionapi.CheckboxProperty{Checkbox: alert.Urgent},
		},
		Children: []notionapi.Block{
			&notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeParagraph,
				},
				Paragraph: notionapi.Paragraph{
					RichText: []notionapi.RichText{{Text: &notionapi.Text{
						Content: truncate(FormatText(alert), 1900),
					}}},
				},
			},
		},
	}

	if _, err := n.client.CreatePage(ctx, req); err != nil {
		return eris.Wrap(err, "notify: create notion review card")
	}
	return nil
}

// truncate keeps text inside Notion's 2000-char rich text limit.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return strings.TrimSpace(s[:limit]) + "…"
}
