package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/verbatimhq/verbatim/internal/transcript"
)

// NewTranscriptCommand constructs the `transcript` command group and subcommands.
func NewTranscriptCommand(baseURL BaseURLFunc) *cobra.Command {
	transcriptCmd := &cobra.Command{Use: "transcript", Short: "Transcript operations"}
	transcriptCmd.AddCommand(
		newTranscriptSubmitCommand(baseURL),
		newTranscriptRangeCommand(baseURL),
		newTranscriptSearchCommand(baseURL),
		newTranscriptTailCommand(baseURL),
		newTranscriptCursorCommand(baseURL),
	)
	return transcriptCmd
}

// loadEvents reads a JSON array of events from path ("-" means stdin), or
// builds a single event from the flags when no file is given.
func loadEvents(cmd *cobra.Command) ([]transcript.Event, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		var r io.Reader
		if file == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(file)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		var events []transcript.Event
		if err := json.NewDecoder(r).Decode(&events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		return events, nil
	}

	text, _ := cmd.Flags().GetString("text")
	if text == "" {
		return nil, fmt.Errorf("either --file or --text is required")
	}
	speaker, _ := cmd.Flags().GetString("speaker")
	language, _ := cmd.Flags().GetString("language")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	startMs, _ := cmd.Flags().GetInt64("start-ms")
	endMs, _ := cmd.Flags().GetInt64("end-ms")
	interim, _ := cmd.Flags().GetBool("interim")
	if startMs == 0 {
		startMs = time.Now().UnixMilli()
	}
	// The server rejects zero-length spans.
	if endMs <= startMs {
		endMs = startMs + 1
	}
	return []transcript.Event{{
		SpeakerID:  speaker,
		Text:       text,
		Confidence: confidence,
		StartMs:    startMs,
		EndMs:      endMs,
		Language:   language,
		Interim:    interim,
	}}, nil
}

func newTranscriptSubmitCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit transcript events to a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			events, err := loadEvents(cmd)
			if err != nil {
				return err
			}
			body := map[string]any{"sessionId": sessionID, "events": events}
			resp, err := postJSON(baseURL(), "/v1/transcripts/submit", body)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().String("file", "", "JSON file with an array of events ('-' for stdin)")
	cmd.Flags().String("text", "", "Fragment text (single-event mode)")
	cmd.Flags().String("speaker", "", "Speaker id")
	cmd.Flags().String("language", "", "Language code")
	cmd.Flags().Float64("confidence", 1.0, "Recognition confidence [0,1]")
	cmd.Flags().Int64("start-ms", 0, "Fragment start in epoch ms (default now)")
	cmd.Flags().Int64("end-ms", 0, "Fragment end in epoch ms (default start+1)")
	cmd.Flags().Bool("interim", false, "Mark the fragment as interim")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newTranscriptRangeCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Read stored fragments in sequence or time order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			from, _ := cmd.Flags().GetUint64("from")
			fromMs, _ := cmd.Flags().GetInt64("from-ms")
			toMs, _ := cmd.Flags().GetInt64("to-ms")
			limit, _ := cmd.Flags().GetInt("limit")
			reverse, _ := cmd.Flags().GetBool("reverse")

			q := url.Values{}
			q.Set("sessionId", sessionID)
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if fromMs > 0 || toMs > 0 {
				q.Set("fromMs", strconv.FormatInt(fromMs, 10))
				q.Set("toMs", strconv.FormatInt(toMs, 10))
			} else {
				q.Set("fromSequence", strconv.FormatUint(from, 10))
				if reverse {
					q.Set("reverse", "true")
				}
			}
			resp, err := getQuery(baseURL(), "/v1/transcripts/range", q)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().Uint64("from", 0, "Start sequence (inclusive)")
	cmd.Flags().Int64("from-ms", 0, "Start of time range in epoch ms")
	cmd.Flags().Int64("to-ms", 0, "End of time range in epoch ms (exclusive)")
	cmd.Flags().Int("limit", 100, "Max fragments to return")
	cmd.Flags().Bool("reverse", false, "Newest first")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newTranscriptSearchCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search stored fragments with a CEL filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			filter, _ := cmd.Flags().GetString("filter")
			from, _ := cmd.Flags().GetUint64("from")
			limit, _ := cmd.Flags().GetInt("limit")

			q := url.Values{}
			q.Set("sessionId", sessionID)
			q.Set("filter", filter)
			q.Set("fromSequence", strconv.FormatUint(from, 10))
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			resp, err := getQuery(baseURL(), "/v1/transcripts/search", q)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().String("filter", "", `CEL filter, e.g. speaker == "s1" && confidence > 0.8`)
	cmd.Flags().Uint64("from", 0, "Start sequence (inclusive)")
	cmd.Flags().Int("limit", 100, "Max fragments to return")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("filter")
	return cmd
}

func newTranscriptTailCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream fragments from a session as they arrive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			from, _ := cmd.Flags().GetUint64("from")
			filter, _ := cmd.Flags().GetString("filter")
			group, _ := cmd.Flags().GetString("group")
			limit, _ := cmd.Flags().GetInt("limit")

			q := url.Values{}
			q.Set("sessionId", sessionID)
			q.Set("fromSequence", strconv.FormatUint(from, 10))
			if filter != "" {
				q.Set("filter", filter)
			}
			if group != "" {
				q.Set("group", group)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			resp, err := getQuery(baseURL(), "/v1/transcripts/tail", q)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return printBody(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			sc := bufio.NewScanner(resp.Body)
			sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for sc.Scan() {
				line := sc.Text()
				if payload, ok := strings.CutPrefix(line, "data: "); ok {
					fmt.Fprintln(out, payload)
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().Uint64("from", 0, "Start sequence (0 = live only)")
	cmd.Flags().String("filter", "", "CEL filter applied server-side")
	cmd.Flags().String("group", "", "Consumer group to commit cursors for")
	cmd.Flags().Int("limit", 0, "Stop after this many fragments (0 = unbounded)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newTranscriptCursorCommand(baseURL BaseURLFunc) *cobra.Command {
	cursorCmd := &cobra.Command{Use: "cursor", Short: "Consumer cursor operations"}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the committed cursor for a group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			group, _ := cmd.Flags().GetString("group")
			q := url.Values{}
			q.Set("sessionId", sessionID)
			q.Set("group", group)
			resp, err := getQuery(baseURL(), "/v1/transcripts/cursor", q)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
	getCmd.Flags().String("session", "", "Session id")
	getCmd.Flags().String("group", "", "Consumer group")
	_ = getCmd.MarkFlagRequired("session")
	_ = getCmd.MarkFlagRequired("group")

	commitCmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit a cursor for a group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			group, _ := cmd.Flags().GetString("group")
			seq, _ := cmd.Flags().GetUint64("sequence")
			body := map[string]any{"sessionId": sessionID, "group": group, "sequence": seq}
			resp, err := postJSON(baseURL(), "/v1/transcripts/cursor/commit", body)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp)
		},
	}
	commitCmd.Flags().String("session", "", "Session id")
	commitCmd.Flags().String("group", "", "Consumer group")
	commitCmd.Flags().Uint64("sequence", 0, "Sequence to commit")
	_ = commitCmd.MarkFlagRequired("session")
	_ = commitCmd.MarkFlagRequired("group")
	_ = commitCmd.MarkFlagRequired("sequence")

	cursorCmd.AddCommand(getCmd, commitCmd)
	return cursorCmd
}
