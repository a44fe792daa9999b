package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdmedia/newsreel/internal/config"
	"github.com/jdmedia/newsreel/internal/manifest"
	"github.com/jdmedia/newsreel/internal/models"
	"github.com/jdmedia/newsreel/internal/renderer"
	"github.com/jdmedia/newsreel/internal/services"
	"github.com/jdmedia/newsreel/internal/storage"
)

// renderctl drives the render pipeline directly against the projects
// tree, without the API server or Redis. Useful on a render box or when
// reprocessing a project by hand.

var projectsDir string

func main() {
	root := &cobra.Command{
		Use:           "renderctl",
		Short:         "Manage and render news video projects from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&projectsDir, "projects-dir", "", "projects root (default: PROJECTS_DIR env or ./projects)")

	root.AddCommand(newCreateCmd(), newRenderCmd(), newStatusCmd(), newDeleteCmd(), newVoicesCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func openStore() (*manifest.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if projectsDir != "" {
		cfg.ProjectsDir = projectsDir
	}

	var mirror manifest.Mirror
	if cfg.BlobStoreURL != "" {
		mirror = storage.New(cfg.BlobStoreURL, cfg.BlobStoreKey, cfg.BlobStoreBucket)
	}
	return manifest.NewStore(cfg.ProjectsDir, mirror), cfg, nil
}

func newCreateCmd() *cobra.Command {
	var payloadFile, title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project from a payload JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(payloadFile)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			var payload models.Payload
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
			if title != "" {
				payload.Title = title
			}
			if payload.NarrationText() == "" {
				return fmt.Errorf("payload has no narration text")
			}
			payload.ApplyDefaults()

			m, dir, err := store.Create(&payload)
			if err != nil {
				return err
			}
			fmt.Printf("created project %s\n  dir: %s\n", m.ProjectID, dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&payloadFile, "payload", "p", "", "path to payload JSON (required)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "override project title")
	cmd.MarkFlagRequired("payload")
	return cmd
}

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <project-id>",
		Short: "Render a project synchronously with the configured renderer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			projectID := args[0]

			dir, ok := store.FindProjectDir(projectID)
			if !ok {
				return fmt.Errorf("project not found: %s", projectID)
			}
			m, err := store.Load(dir)
			if err != nil {
				return err
			}
			if m.Payload == nil {
				return fmt.Errorf("manifest has no payload")
			}
			payload := m.Payload
			payload.ApplyDefaults()

			ctx := cmd.Context()
			if _, err := store.Patch(ctx, dir, map[string]any{
				"status": string(models.ProjectStatusProcessing),
				"error":  "",
			}); err != nil {
				return err
			}

			dispatcher, err := buildDispatcher(cfg)
			if err != nil {
				return err
			}
			provider := dispatcher.Resolve(payload.Renderer.Type)
			log.Printf("Rendering %s with %q", projectID, provider.Name())

			profile := models.ProfileFor(cfg.RenderResolution, models.DefaultProfile())
			job := renderer.NewJob(projectID, dir, payload, profile)

			if err := runRender(ctx, provider, job); err != nil {
				store.Patch(ctx, dir, map[string]any{
					"status": string(models.ProjectStatusError),
					"error":  err.Error(),
				})
				return err
			}

			outputs, err := provider.CollectOutputs(ctx, job)
			if err != nil {
				return err
			}
			for _, line := range job.Logs() {
				store.AppendLog(dir, line)
			}
			if _, err := store.Patch(ctx, dir, map[string]any{
				"status":  string(models.ProjectStatusDone),
				"outputs": outputs,
			}); err != nil {
				return err
			}
			fmt.Printf("done: %s\n", projectID)
			for k, v := range outputs {
				fmt.Printf("  %s: %v\n", k, v)
			}
			return nil
		},
	}
	return cmd
}

func runRender(ctx context.Context, provider renderer.Provider, job *renderer.Job) error {
	if err := provider.Prepare(ctx, job); err != nil {
		return err
	}
	return provider.Render(ctx, job)
}

func buildDispatcher(cfg *config.Config) (*renderer.Dispatcher, error) {
	encoder := services.NewEncoder(services.NewExecutor())

	synthesizers := map[string]services.Synthesizer{}
	if cfg.ElevenLabsKey != "" {
		synthesizers["elevenlabs"] = services.NewElevenLabsService(cfg.ElevenLabsKey)
	}
	if cfg.OpenAIKey != "" {
		synthesizers["openai"] = services.NewOpenAITTSService(cfg.OpenAIKey)
	}
	assembler := renderer.NewAssembler(encoder, synthesizers)

	var uploader renderer.Uploader
	if cfg.BlobStoreURL != "" {
		uploader = storage.New(cfg.BlobStoreURL, cfg.BlobStoreKey, cfg.BlobStoreBucket)
	}

	local := renderer.NewLocalProvider(assembler, encoder, uploader)
	providers := map[models.RendererType]renderer.Provider{}
	if cfg.ShotstackKey != "" {
		providers[models.RendererShotstack] = renderer.NewShotstackProvider(assembler, cfg.ShotstackKey, cfg.ShotstackHost, uploader)
	} else {
		providers[models.RendererShotstack] = renderer.NewUnconfiguredProvider("shotstack", "SHOTSTACK_API_KEY is not set")
	}
	return renderer.NewDispatcher(local, providers), nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show a project's status, outputs and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			dir, ok := store.FindProjectDir(args[0])
			if !ok {
				return fmt.Errorf("project not found: %s", args[0])
			}
			m, err := store.Load(dir)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project directory (mirrored artifacts are synced first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			if !store.Delete(cmd.Context(), args[0]) {
				return fmt.Errorf("project not found: %s", args[0])
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func newVoicesCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the configured TTS voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			catalog, err := services.LoadVoiceCatalog(cfg.VoicesFile)
			if err != nil {
				return err
			}
			for _, v := range catalog.List(provider) {
				if v.IsSeparator() {
					fmt.Println(v.Name)
					continue
				}
				fmt.Printf("  %-24s %s (%s)\n", v.ID, v.Name, v.Language)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "elevenlabs", "TTS provider")
	return cmd
}
