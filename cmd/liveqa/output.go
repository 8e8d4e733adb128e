package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/liveqa/internal/model"
	"github.com/alfredjeanlab/liveqa/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printEventTable(w io.Writer, ev *model.Event) {
	fmt.Fprintf(w, "Token:       %s\n", ev.Tokens.Public)
	if ev.Tokens.Moderator != "" {
		fmt.Fprintf(w, "Moderator:   %s\n", ev.Tokens.Moderator)
	}
	fmt.Fprintf(w, "Name:        %s\n", ev.Info.Name)
	if ev.Info.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", ev.Info.Description)
	}
	if ev.Info.Color != "" {
		fmt.Fprintf(w, "Color:       %s\n", ev.Info.Color)
	}
	fmt.Fprintf(w, "State:       %s\n", ui.RenderState(ev.State))
	if ev.IsPremium() {
		fmt.Fprintf(w, "Premium:     %s\n", ev.Premium.Kind)
	}
	if len(ev.Tags) > 0 {
		names := make([]string, len(ev.Tags))
		for i, t := range ev.Tags {
			names[i] = fmt.Sprintf("%d:%s", t.ID, t.Name)
		}
		fmt.Fprintf(w, "Tags:        %s\n", strings.Join(names, ", "))
	}
	for i, l := range ev.ContextLinks {
		label := l.URL
		if l.Title != "" {
			label = l.Title + " <" + l.URL + ">"
		}
		fmt.Fprintf(w, "Link %d:      %s\n", i, label)
	}
	if !ev.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created At:  %s\n", ev.CreatedAt.Format(timeLayout))
	}
	if !ev.LastEdit.IsZero() {
		fmt.Fprintf(w, "Last Edit:   %s\n", ev.LastEdit.Format(timeLayout))
	}
}

// sortQuestions orders questions by likes, newest first among equals.
func sortQuestions(qs []model.Question) []model.Question {
	out := append([]model.Question(nil), qs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Likes != out[j].Likes {
			return out[i].Likes > out[j].Likes
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func questionFlags(q model.Question) string {
	var flags []string
	if q.Answered {
		flags = append(flags, "answered")
	}
	if q.Hidden {
		flags = append(flags, "hidden")
	}
	if q.Screening {
		flags = append(flags, "screening")
	}
	return strings.Join(flags, ",")
}

func tagName(ev *model.Event, id *int) string {
	if id == nil {
		return ""
	}
	for _, t := range ev.Tags {
		if t.ID == *id {
			return t.Name
		}
	}
	return fmt.Sprintf("#%d", *id)
}

func printQuestionTable(out io.Writer, ev *model.Event, qs []model.Question) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLIKES\tFLAGS\tTAG\tTEXT")
	for _, q := range qs {
		text := q.Text
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", q.ID, q.Likes, questionFlags(q), tagName(ev, q.Tag), text)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d questions\n", len(qs))
}

func printQuestion(w io.Writer, q *model.Question) {
	fmt.Fprintf(w, "ID:          %d\n", q.ID)
	fmt.Fprintf(w, "Text:        %s\n", q.Text)
	fmt.Fprintf(w, "Likes:       %d\n", q.Likes)
	if f := questionFlags(*q); f != "" {
		fmt.Fprintf(w, "Flags:       %s\n", f)
	}
	if q.Tag != nil {
		fmt.Fprintf(w, "Tag:         %d\n", *q.Tag)
	}
	fmt.Fprintf(w, "Created At:  %s\n", q.CreatedAt.Format(timeLayout))
}
