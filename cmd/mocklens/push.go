package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hyperengineering/mocklens/pkg/client"
	"github.com/hyperengineering/mocklens/pkg/item"
	"github.com/spf13/cobra"
)

var (
	pushServer    string
	pushAPIKey    string
	pushProjectID string
	pushScreenID  string
	pushFile      string
	pushModel     string
	pushTimeout   time.Duration
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Save a JSON record set to a MockLens server",
	Long: "Read a record set from --file and save it as the latest result of a screen. " +
		"The file holds either a bare array of elements or an object with an \"items\" array, " +
		"such as the output of analyze --format json for one image.",
	Args: cobra.NoArgs,
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushServer, "server", "http://localhost:8080", "Server base URL")
	pushCmd.Flags().StringVar(&pushAPIKey, "api-key", "", "API key (default: MOCKLENS_API_KEY)")
	pushCmd.Flags().StringVar(&pushProjectID, "project", "", "Project ID")
	pushCmd.Flags().StringVar(&pushScreenID, "screen", "", "Screen ID")
	pushCmd.Flags().StringVar(&pushFile, "file", "", "JSON file holding the record set")
	pushCmd.Flags().StringVar(&pushModel, "model", "", "Model that produced the records")
	pushCmd.Flags().DurationVar(&pushTimeout, "timeout", 30*time.Second, "Request timeout")
	pushCmd.MarkFlagRequired("project")
	pushCmd.MarkFlagRequired("screen")
	pushCmd.MarkFlagRequired("file")
}

func runPush(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(pushFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", pushFile, err)
	}
	records, err := decodeRecordFile(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", pushFile, err)
	}

	apiKey := pushAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("MOCKLENS_API_KEY")
	}
	c, err := client.New(client.Config{
		BaseURL: pushServer,
		APIKey:  apiKey,
		Timeout: pushTimeout,
	})
	if err != nil {
		return err
	}

	saver := &client.ResultSaver{
		Client:    c,
		ProjectID: pushProjectID,
		ScreenID:  pushScreenID,
		Model:     pushModel,
	}
	saved, err := saver.Save(context.Background(), records)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			for _, fe := range apiErr.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", fe.Field, fe.Message)
			}
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d elements to screen %s\n", len(saved), pushScreenID)
	return nil
}

// decodeRecordFile accepts a bare record array or an object with "items".
func decodeRecordFile(data []byte) ([]item.Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("file is empty")
	}
	if data[0] == '[' {
		var records []item.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var wrapper struct {
		Items *[]item.Record `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Items == nil {
		return nil, errors.New(`expected an array or an object with an "items" array`)
	}
	return *wrapper.Items, nil
}
