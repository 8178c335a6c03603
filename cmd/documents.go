package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/grovetools/causes/cli"
	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/logging"
	"github.com/grovetools/causes/pkg/daemon"
	"github.com/grovetools/causes/pkg/models"
	"github.com/grovetools/causes/pkg/profiling"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const requestTimeout = 10 * time.Second

// NewPutCmd returns the put command.
func NewPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <collection> [file]",
		Short: "Insert or replace a document",
		Long: `Read one document (YAML or JSON) from file, or stdin when file is
omitted or "-", check it against the collection's kind and store it.

The document id comes from --id or the document's "id" field.`,
		Example: `  causes put ngos red-cross.yml
  echo '{"id":"7","name":"Gala","category":"Fundraiser"}' | causes put events --kind event`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPut,
	}
	cmd.Flags().String("id", "", "Document id (overrides the document's id field)")
	cmd.Flags().String("kind", "", "Entity kind used to check the document; defaults to the collection's configured kind")
	return cmd
}

// NewDeleteCmd returns the delete command.
func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <collection> <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a document",
		Args:    cobra.ExactArgs(2),
		RunE:    runDelete,
	}
}

func runPut(cmd *cobra.Command, args []string) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	name := args[0]

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 2 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("failed to open document: %w", err)
		}
		defer f.Close()
		in = f
	}
	doc, err := readDocument(in)
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id, _ = doc["id"].(string)
	}
	if id == "" {
		return errors.MalformedRecord("", fmt.Errorf("document has no id; pass --id"))
	}
	doc["id"] = id

	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.MalformedRecord(id, err)
	}

	kind := cfg.KindOf(name)
	if k, _ := cmd.Flags().GetString("kind"); k != "" {
		kind = models.Kind(k)
	}
	if err := checkDocument(kind, raw); err != nil {
		return err
	}

	client, err := daemon.NewClient(cfg.Source, cli.GetLogger(cmd, "put"))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	sp := profiling.Start("request")
	frame, err := client.PutDocument(ctx, name, id, raw)
	sp.Stop()
	if err != nil {
		return err
	}
	return reportFrame(cmd, "Stored "+id, frame)
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	name, id := args[0], args[1]

	client, err := daemon.NewClient(cfg.Source, cli.GetLogger(cmd, "delete"))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	sp := profiling.Start("request")
	frame, err := client.DeleteDocument(ctx, name, id)
	sp.Stop()
	if err != nil {
		return err
	}
	return reportFrame(cmd, "Deleted "+id, frame)
}

// readDocument parses a single YAML or JSON object.
func readDocument(r io.Reader) (map[string]interface{}, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.MalformedRecord("", err)
	}
	if doc == nil {
		return nil, errors.MalformedRecord("", fmt.Errorf("document is empty"))
	}
	return doc, nil
}

// checkDocument decodes raw as kind so malformed documents are rejected
// before they reach the store.
func checkDocument(kind models.Kind, raw json.RawMessage) error {
	var err error
	switch kind {
	case models.KindOrganization:
		_, err = models.DecodeOrganization(raw)
	case models.KindEvent:
		_, err = models.DecodeEvent(raw)
	default:
		err = errors.InvalidQuery(fmt.Sprintf("unknown kind %q", kind)).WithDetail("field", "kind")
	}
	return err
}

func reportFrame(cmd *cobra.Command, message string, frame daemon.Frame) error {
	out := cmd.OutOrStdout()
	if cli.GetOptions(cmd).JSONOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(frame)
	}
	pretty := logging.NewPrettyLogger().WithWriter(out)
	pretty.Success(message)
	pretty.Field("collection", frame.Collection)
	pretty.Field("seq", frame.Seq)
	pretty.Field("documents", len(frame.Documents))
	return nil
}
