package notion

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// StatusEquals filters pages whose status property equals status.
func StatusEquals(property, status string) notionapi.Filter {
	return notionapi.PropertyFilter{
		Property: property,
		Status:   &notionapi.StatusFilterCondition{Equals: status},
	}
}

// PlainText joins the plain text of rich text runs.
func PlainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

// Text builds a rich text property value.
func Text(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

// Status builds a status property value.
func Status(name string) notionapi.StatusProperty {
	return notionapi.StatusProperty{
		Type:   notionapi.PropertyTypeStatus,
		Status: notionapi.Status{Name: name},
	}
}

// Date builds a date property value starting at t.
func Date(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Type: notionapi.PropertyTypeDate,
		Date: &notionapi.DateObject{Start: &d},
	}
}
