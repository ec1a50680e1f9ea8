package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/cellardex/cellarid/internal/model"
	"github.com/cellardex/cellarid/internal/stream"
)

var (
	identifyImage    string
	identifyMime     string
	identifyBarcode  string
	identifyOutput   string
	identifyParallel int
)

var identifyCmd = &cobra.Command{
	Use:   "identify [description]...",
	Short: "Identify one or more bottles from the command line",
	Long: `Identify wine bottles from free-text descriptions, a label photo, or a
barcode. Multiple descriptions run concurrently. With --output text, field
updates print as the fast tier streams them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reqs, err := buildRequests(args)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			return eris.New("nothing to identify: pass a description, --image, or --barcode")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results := make([]identifyResult, len(reqs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(identifyParallel)
		for i, req := range reqs {
			g.Go(func() error {
				res, err := runOne(gctx, env, req)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		return printResults(results)
	},
}

// identifyResult is the printable outcome of one request.
type identifyResult struct {
	Input      string          `json:"input" yaml:"input"`
	Candidate  model.Candidate `json:"candidate" yaml:"candidate"`
	Confidence int             `json:"confidence" yaml:"confidence"`
	Improved   bool            `json:"improved" yaml:"improved"`
	Elapsed    string          `json:"elapsed" yaml:"elapsed"`
}

func buildRequests(args []string) ([]model.IdentificationRequest, error) {
	var reqs []model.IdentificationRequest

	for _, text := range args {
		reqs = append(reqs, model.IdentificationRequest{
			ID:   uuid.New().String(),
			Kind: model.InputText,
			Text: text,
		})
	}

	if identifyBarcode != "" {
		reqs = append(reqs, model.IdentificationRequest{
			ID:   uuid.New().String(),
			Kind: model.InputBarcode,
			Text: identifyBarcode,
		})
	}

	if identifyImage != "" {
		img, err := os.ReadFile(identifyImage)
		if err != nil {
			return nil, eris.Wrapf(err, "read image %s", identifyImage)
		}
		mime := identifyMime
		if mime == "" {
			mime = guessMime(identifyImage)
		}
		reqs = append(reqs, model.IdentificationRequest{
			ID:         uuid.New().String(),
			Kind:       model.InputImage,
			ImageBytes: img,
			MimeType:   mime,
		})
	}

	return reqs, nil
}

func guessMime(path string) string {
	switch strings.ToLower(path[strings.LastIndex(path, ".")+1:]) {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// runOne executes a single request, printing live progress in text mode, and
// persists the summary.
func runOne(ctx context.Context, env *identifyEnv, req model.IdentificationRequest) (identifyResult, error) {
	start := time.Now()
	verbose := identifyOutput == "text"

	s := stream.NewStream(16)
	sink := newSummarySink(s)

	done := make(chan error, 1)
	go func() {
		defer s.Close()
		done <- env.Engine.Identify(ctx, req, sink)
	}()

	for ev := range s.Events() {
		if !verbose {
			continue
		}
		switch p := ev.Payload.(type) {
		case stream.FieldPayload:
			fmt.Printf("  %-10s %v\n", p.Field+":", p.Value)
		case stream.ResultPayload:
			fmt.Printf("  -> confidence %d\n", p.Confidence)
		case stream.RefiningPayload:
			fmt.Printf("  %s\n", p.Message)
		case stream.RefinedPayload:
			if p.Improved {
				fmt.Printf("  -> refined to confidence %d\n", p.Confidence)
			} else {
				fmt.Println("  -> no improvement found")
			}
		case stream.ErrorPayload:
			fmt.Printf("  error: %s\n", p.Message)
		}
	}
	if err := <-done; err != nil {
		return identifyResult{}, err
	}

	sum, ok := sink.summary(req)
	if !ok {
		return identifyResult{}, eris.Errorf("no result for request %s", req.ID)
	}
	if err := env.Store.SaveIdentification(ctx, sum); err != nil {
		return identifyResult{}, eris.Wrap(err, "save identification")
	}

	label := req.Text
	if req.Kind == model.InputImage {
		label = identifyImage
	}
	return identifyResult{
		Input:      label,
		Candidate:  *sum.Candidate,
		Confidence: sum.Confidence,
		Improved:   sum.Improved,
		Elapsed:    time.Since(start).Round(time.Millisecond).String(),
	}, nil
}

func printResults(results []identifyResult) error {
	switch identifyOutput {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(results), "encode json")
	case "yaml":
		return eris.Wrap(yaml.NewEncoder(os.Stdout).Encode(results), "encode yaml")
	case "text":
		for _, res := range results {
			name := "(unidentified)"
			if res.Candidate.Name != nil {
				name = *res.Candidate.Name
			}
			fmt.Printf("%s: %s (confidence %d, %s)\n", res.Input, name, res.Confidence, res.Elapsed)
		}
		return nil
	default:
		return eris.Errorf("unknown output format %q", identifyOutput)
	}
}

func init() {
	identifyCmd.Flags().StringVar(&identifyImage, "image", "", "path to a label photo")
	identifyCmd.Flags().StringVar(&identifyMime, "mime-type", "", "image MIME type (default inferred from extension)")
	identifyCmd.Flags().StringVar(&identifyBarcode, "barcode", "", "UPC/EAN barcode digits")
	identifyCmd.Flags().StringVarP(&identifyOutput, "output", "o", "text", "output format: text, json, or yaml")
	identifyCmd.Flags().IntVar(&identifyParallel, "parallel", 3, "max concurrent identifications")
	rootCmd.AddCommand(identifyCmd)
}
