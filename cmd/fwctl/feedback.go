package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	// feedback command flags
	fbInteractionID string
	fbUserID        string
	fbKind          string
	fbSatisfaction  float64
	fbNote          string
	fbSuggestions   []string
	fbContext       string
	fbOutputJSON    bool
)

func init() {
	rootCmd.AddCommand(feedbackCmd)

	feedbackCmd.Flags().StringVar(&fbInteractionID, "interaction", "", "Interaction the feedback refers to (required)")
	feedbackCmd.Flags().StringVar(&fbUserID, "user", "", "User submitting the feedback (required)")
	feedbackCmd.Flags().StringVar(&fbKind, "kind", "", "Feedback kind: positive, negative, neutral, or correction")
	feedbackCmd.Flags().Float64Var(&fbSatisfaction, "satisfaction", 3, "Satisfaction score from 1 (worst) to 5 (best)")
	feedbackCmd.Flags().StringVar(&fbNote, "note", "", "Free-form feedback note")
	feedbackCmd.Flags().StringArrayVar(&fbSuggestions, "suggestion", nil, "Improvement suggestion (repeatable)")
	feedbackCmd.Flags().StringVar(&fbContext, "context", "", "Extra context as a JSON object")
	feedbackCmd.Flags().BoolVar(&fbOutputJSON, "json", false, "Output result as JSON")
	_ = feedbackCmd.MarkFlagRequired("interaction")
	_ = feedbackCmd.MarkFlagRequired("user")
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Submit feedback for an interaction",
	Long: `Submit user feedback for an assistant interaction.

The feedback is queued by the daemon and folded into satisfaction analysis
on the next cycle.

Examples:
  # Thumbs-down with a note
  fwctl feedback --interaction int_42 --user alice --kind negative \
    --satisfaction 2 --note "answer ignored the error log"

  # Positive rating with suggestions
  fwctl feedback --interaction int_43 --user bob --kind positive \
    --satisfaction 5 --suggestion "show the diff inline"

  # Attach extra context
  fwctl feedback --interaction int_44 --user carol --satisfaction 3 \
    --context '{"channel":"cli","locale":"en"}'`,
	RunE: runFeedback,
}

// FeedbackRequest matches internal/http/server.go FeedbackRequest
type FeedbackRequest struct {
	InteractionID string         `json:"interaction_id"`
	UserID        string         `json:"user_id"`
	Kind          string         `json:"kind"`
	Satisfaction  float64        `json:"satisfaction"`
	Note          string         `json:"note,omitempty"`
	Suggestions   []string       `json:"suggestions,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// FeedbackResponse matches internal/http/server.go FeedbackResponse
type FeedbackResponse struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// runFeedback handles the feedback command
func runFeedback(cmd *cobra.Command, args []string) error {
	if fbSatisfaction < 1 || fbSatisfaction > 5 {
		return fmt.Errorf("invalid satisfaction %v (must be between 1 and 5)", fbSatisfaction)
	}

	var contextMap map[string]any
	if fbContext != "" {
		if err := json.Unmarshal([]byte(fbContext), &contextMap); err != nil {
			return fmt.Errorf("invalid --context JSON: %w", err)
		}
	}

	req := FeedbackRequest{
		InteractionID: fbInteractionID,
		UserID:        fbUserID,
		Kind:          fbKind,
		Satisfaction:  fbSatisfaction,
		Note:          fbNote,
		Suggestions:   fbSuggestions,
		Context:       contextMap,
	}

	var fbResp FeedbackResponse
	if err := postJSON("/api/v1/feedback", req, http.StatusAccepted, &fbResp); err != nil {
		return err
	}

	if fbOutputJSON {
		return outputJSON(fbResp)
	}

	fmt.Printf("Feedback accepted\n")
	fmt.Printf("ID: %s\n", fbResp.ID)
	fmt.Printf("Kind: %s\n", fbResp.Kind)

	return nil
}
