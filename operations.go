package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"evermoment/internal/compositor"
	"evermoment/internal/editor"
	"evermoment/internal/raster"
	"evermoment/internal/removebg"
)

type Operations = []Operation

// Operation is one batch job, tagged by "type" on the wire.
type Operation struct {
	Compose *ComposeOperation
	Cutout  *CutoutOperation
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var op struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return fmt.Errorf("failed to unmarshal operation: %w", err)
	}

	switch op.Type {
	case "compose":
		var compose ComposeOperation
		if err := json.Unmarshal(data, &compose); err != nil {
			return fmt.Errorf("failed to unmarshal compose operation: %w", err)
		}
		o.Compose = &compose
	case "cutout":
		var cutout CutoutOperation
		if err := json.Unmarshal(data, &cutout); err != nil {
			return fmt.Errorf("failed to unmarshal cutout operation: %w", err)
		}
		o.Cutout = &cutout
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	switch {
	case o.Compose != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			*ComposeOperation
		}{"compose", o.Compose})
	case o.Cutout != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			*CutoutOperation
		}{"cutout", o.Cutout})
	}
	return []byte("null"), nil
}

// ComposeOperation renders one souvenir. Paths are relative to the base directory
// unless they are absolute or http(s) URLs.
type ComposeOperation struct {
	// Subject is an already cut out image; Photo is sent through background removal first.
	Subject     string                 `json:"subject,omitempty"`
	Photo       string                 `json:"photo,omitempty"`
	Background  string                 `json:"background,omitempty"`
	Scale       *float64               `json:"scale,omitempty"`
	Position    *editor.Point          `json:"position,omitempty"`
	Adjustments editor.AdjustmentPatch `json:"adjustments,omitzero"`
	Header      editor.TextPatch       `json:"header,omitzero"`
	Footer      editor.TextPatch       `json:"footer,omitzero"`
	Output      string                 `json:"output,omitempty"`
}

type CutoutOperation struct {
	Filename string `json:"filename"`
	Output   string `json:"output,omitempty"`
}

type OperationExecutor struct {
	BaseDir    string
	OutputDir  string
	Editor     editor.Config
	Compositor *compositor.Compositor
	Loader     raster.Loader
	Remover    BackgroundRemover
}

func (r OperationExecutor) Exec(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		log.Ctx(ctx).Warn().Msg("no operations to execute")
		return nil
	}

	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())

	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}
	for i, op := range ops {
		pooler.Go(func(ctx context.Context) error {
			if err := r.executeOperation(ctx, i, op); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Int("index", i).
					Interface("op", op).
					Msg("failed to execute operation")
				return err
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return err
	}

	return nil
}

func (r OperationExecutor) executeOperation(ctx context.Context, index int, op Operation) error {
	if op.Compose != nil {
		return r.executeCompose(ctx, index, *op.Compose)
	} else if op.Cutout != nil {
		return r.executeCutout(ctx, *op.Cutout)
	}
	return nil
}

func (r OperationExecutor) executeCompose(ctx context.Context, index int, op ComposeOperation) error {
	log.Ctx(ctx).Info().Str("subject", op.Subject+op.Photo).Str("background", op.Background).Msg("composing")
	s := editor.NewSession(fmt.Sprintf("batch-%d", index), r.Editor)

	if op.Subject != "" || op.Photo != "" {
		gen := s.BeginSubject()
		h, err := r.loadSubject(ctx, op)
		if err != nil {
			return err
		}
		if err := s.ApplySubject(gen, h); err != nil {
			return err
		}
	}
	if op.Background != "" {
		h, err := r.Loader.Load(ctx, op.Background)
		if err != nil {
			return err
		}
		if err := s.SetBackground(editor.TemplateBackground(op.Background, h)); err != nil {
			return err
		}
	}
	if op.Scale != nil {
		if err := s.SetScale(*op.Scale); err != nil {
			return err
		}
	}
	if op.Position != nil {
		if err := s.MoveTo(*op.Position); err != nil {
			return err
		}
	}
	if err := s.Adjust(op.Adjustments); err != nil {
		return err
	}
	if err := s.EditText(editor.Header, op.Header); err != nil {
		return err
	}
	if err := s.EditText(editor.Footer, op.Footer); err != nil {
		return err
	}

	img, err := r.Compositor.Render(s.Scene())
	if err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	name := op.Output
	if name == "" {
		// several composes may finish within the same millisecond
		name = strings.TrimSuffix(raster.ExportName(time.Now()), ".png") + fmt.Sprintf("-%d.png", index)
	}
	var b bytes.Buffer
	if err := raster.EncodePNG(&b, img); err != nil {
		return err
	}
	return r.write(name, b.Bytes())
}

func (r OperationExecutor) loadSubject(ctx context.Context, op ComposeOperation) (*raster.Handle, error) {
	if op.Subject != "" {
		return r.Loader.Load(ctx, op.Subject)
	}
	out, err := r.cutout(ctx, op.Photo)
	if err != nil {
		return nil, err
	}
	return raster.DecodeBytes(out)
}

func (r OperationExecutor) executeCutout(ctx context.Context, op CutoutOperation) error {
	log.Ctx(ctx).Info().Str("filename", op.Filename).Msg("removing background")
	out, err := r.cutout(ctx, op.Filename)
	if err != nil {
		return err
	}
	name := op.Output
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(op.Filename), filepath.Ext(op.Filename)) + "-cutout.png"
	}
	return r.write(name, out)
}

func (r OperationExecutor) cutout(ctx context.Context, filename string) ([]byte, error) {
	if r.Remover == nil {
		return nil, &removebg.Error{Category: removebg.CategoryConfiguration, Message: "background removal is not configured"}
	}
	sourcePath := r.Loader.Resolve(filename)
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sourcePath, err)
	}
	return r.Remover.RemoveBackground(ctx, removebg.Upload{
		Filename:    filepath.Base(filename),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))),
		Data:        data,
	})
}

func (r OperationExecutor) write(name string, data []byte) error {
	outPath := filepath.Join(r.OutputDir, filepath.Base(name))
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	return nil
}

// readOperations parses a JSON lines file. Blank lines and lines starting with # are skipped.
func readOperations(path string) (Operations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var ops Operations
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var op Operation
		if err := json.Unmarshal([]byte(text), &op); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ops, nil
}
