package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/content-router/internal/model"
)

// addFactFlags registers the idea fact flags shared by route commands.
func addFactFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("facts-file", "", "JSON file of idea facts (- for stdin)")
	f.String("resource", "", "resource type")
	f.String("length", "", "estimated length")
	f.String("sensitivity", "", "time sensitivity (news_hook, seasonal, evergreen)")
	f.String("news-window", "", "news window date (YYYY-MM-DD)")
	f.Bool("contrarian", false, "idea takes a contrarian angle")
	f.String("format", "", "content format")
	f.StringSlice("audience", nil, "target audience (repeatable)")
	f.StringSlice("tag", nil, "tag (repeatable)")
	f.String("pillar", "", "content pillar")
	f.String("source", "", "idea source")
}

// factsFromFlags reads facts from --facts-file, then applies any explicitly
// set fact flags on top.
func factsFromFlags(cmd *cobra.Command, stdin io.Reader) (model.Facts, error) {
	var facts model.Facts
	flags := cmd.Flags()

	if path, _ := flags.GetString("facts-file"); path != "" {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return facts, eris.Wrap(err, "read facts file")
		}
		if err := json.Unmarshal(data, &facts); err != nil {
			return facts, eris.Wrap(err, "parse facts file")
		}
	}

	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("resource", &facts.Resource)
	str("length", &facts.EstimatedLength)
	str("news-window", &facts.NewsWindow)
	str("format", &facts.Format)
	str("pillar", &facts.Pillar)
	str("source", &facts.Source)
	if flags.Changed("sensitivity") {
		s, _ := flags.GetString("sensitivity")
		facts.TimeSensitivity = model.TimeSensitivity(s)
	}
	if flags.Changed("contrarian") {
		facts.ContrarianAngle, _ = flags.GetBool("contrarian")
	}
	if flags.Changed("audience") {
		facts.Audiences, _ = flags.GetStringSlice("audience")
	}
	if flags.Changed("tag") {
		facts.Tags, _ = flags.GetStringSlice("tag")
	}
	return facts, nil
}
