package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

// interactionKinds are the event types the eligibility indicators aggregate.
var interactionKinds = map[string]bool{
	"email":      true,
	"call":       true,
	"new_policy": true,
	"complaint":  true,
	"claim":      true,
}

var recordCmd = &cobra.Command{
	Use:   "record CLIENT_ID KIND",
	Short: "Record a client interaction for the eligibility filter",
	Long: `Append one contact event to a client's interaction history. The rank
command's eligibility filter reads this history to exclude recently contacted
clients.

KIND is one of: email, call, new_policy, complaint, claim.

Examples:
  record c1 email
  record c1 complaint
  record c1 complaint --at 2026-08-01T10:00:00Z --resolved 2026-08-15T09:00:00Z`,
	Args: cobra.ExactArgs(2),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().String("at", "", "event time, RFC 3339 (default: now)")
	recordCmd.Flags().String("resolved", "", "resolution time for complaints, RFC 3339")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientID, kind := args[0], args[1]
	if !interactionKinds[kind] {
		return eris.Errorf("record: unknown interaction kind %q (want email, call, new_policy, complaint, or claim)", kind)
	}

	atFlag, _ := cmd.Flags().GetString("at")
	resolvedFlag, _ := cmd.Flags().GetString("resolved")

	occurredAt, err := parseEventTime(atFlag, time.Now().UTC())
	if err != nil {
		return eris.Wrap(err, "record: --at")
	}
	var resolvedAt *time.Time
	if resolvedFlag != "" {
		ts, err := parseEventTime(resolvedFlag, time.Time{})
		if err != nil {
			return eris.Wrap(err, "record: --resolved")
		}
		resolvedAt = &ts
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.RecordInteraction(ctx, clientID, kind, occurredAt, resolvedAt); err != nil {
		return err
	}
	fmt.Printf("Recorded %s interaction for %s at %s.\n", kind, clientID, occurredAt.Format(time.RFC3339))
	return nil
}

// parseEventTime parses an RFC 3339 flag value, substituting fallback when
// the flag was not given.
func parseEventTime(v string, fallback time.Time) (time.Time, error) {
	if v == "" {
		return fallback, nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid time %q", v)
	}
	return ts, nil
}
