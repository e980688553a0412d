package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"TrackForge/logger"
	"TrackForge/model"
)

// ProcessorEngine invokes the external audio processor as a subprocess. The
// processor writes the extended mix to the output path and reports the
// outcome as a JSON envelope on stdout; a separate analyzer script reports
// format, duration, bpm, key and bitrate for the produced artifact.
type ProcessorEngine struct {
	pythonPath      string
	processorScript string
	analyzerScript  string
}

// NewProcessorEngine creates a ProcessorEngine.
func NewProcessorEngine(pythonPath, processorScript, analyzerScript string) *ProcessorEngine {
	return &ProcessorEngine{
		pythonPath:      pythonPath,
		processorScript: processorScript,
		analyzerScript:  analyzerScript,
	}
}

// processorEnvelope is the stdout contract of the processor script.
type processorEnvelope struct {
	Status     string `json:"status"`
	OutputPath string `json:"output_path,omitempty"`
	Message    string `json:"message,omitempty"`
}

// analyzerReport is the stdout contract of the analyzer script.
type analyzerReport struct {
	Format   string  `json:"format"`
	Duration float64 `json:"duration"`
	BPM      int     `json:"bpm"`
	Key      string  `json:"key"`
	Bitrate  int     `json:"bitrate"`
	Error    string  `json:"error,omitempty"`
}

// Generate runs the processor against sourcePath and, on success, the
// analyzer against the artifact. No deadline is imposed here beyond the
// caller's context: a generation runs to completion or failure.
func (e *ProcessorEngine) Generate(ctx context.Context, sourcePath, outputPath string, settings model.MixSettings) (*Result, error) {
	start := time.Now()
	logger.Info("Starting audio engine run",
		logger.String("source", sourcePath),
		logger.String("output", outputPath),
		logger.Int("introBars", settings.IntroLengthBars),
		logger.Int("outroBars", settings.OutroLengthBars),
		logger.Bool("preserveVocals", settings.PreserveVocals),
		logger.String("beatDetection", settings.BeatDetection))

	args := []string{
		e.processorScript,
		sourcePath,
		outputPath,
		strconv.Itoa(settings.IntroLengthBars),
		strconv.Itoa(settings.OutroLengthBars),
		strconv.FormatBool(settings.PreserveVocals),
		settings.BeatDetection,
	}

	cmd := exec.CommandContext(ctx, e.pythonPath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var envelope processorEnvelope
	if err := json.Unmarshal(lastJSONLine(out.Bytes()), &envelope); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("%w: processor exited: %v, stderr: %s", model.ErrEngineFailure, runErr, stderr.String())
		}
		return nil, fmt.Errorf("%w: failed to parse processor output: %v", model.ErrEngineFailure, err)
	}
	if envelope.Status != "success" {
		return nil, fmt.Errorf("%w: %s", model.ErrEngineFailure, envelope.Message)
	}

	artifactPath := envelope.OutputPath
	if artifactPath == "" {
		artifactPath = outputPath
	}

	result := &Result{ArtifactPath: artifactPath}

	report, err := e.analyze(ctx, artifactPath)
	if err != nil {
		// The mix exists; a failed analysis only costs metadata.
		logger.Warn("Artifact analysis failed",
			logger.String("artifact", artifactPath),
			logger.ErrorField(err))
	} else {
		result.DurationSeconds = report.Duration
		result.BPM = report.BPM
		result.MusicalKey = report.Key
		result.Format = report.Format
		result.Bitrate = report.Bitrate
	}

	logger.Info("Audio engine run finished",
		logger.String("artifact", artifactPath),
		logger.Duration("elapsed", time.Since(start)))
	return result, nil
}

// analyze runs the analyzer script against a file.
func (e *ProcessorEngine) analyze(ctx context.Context, path string) (*analyzerReport, error) {
	cmd := exec.CommandContext(ctx, e.pythonPath, e.analyzerScript, path)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("analyzer execution failed for %s: %w, stderr: %s", path, err, stderr.String())
	}

	var report analyzerReport
	if err := json.Unmarshal(lastJSONLine(out.Bytes()), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analyzer output: %w", err)
	}
	if report.Error != "" {
		return nil, fmt.Errorf("analyzer reported error: %s", report.Error)
	}
	return &report, nil
}

// lastJSONLine extracts the final non-empty line of output. The scripts log
// to stderr but some environments leak progress lines into stdout; the JSON
// envelope is always last.
func lastJSONLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 {
			return line
		}
	}
	return out
}
