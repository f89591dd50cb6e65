/*
DESCRIPTION
  thumb is a command line tool that extracts still-image thumbnails from
  MP4 family video files using the thumb extraction pipeline.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main provides the thumb command.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/thumb/export"
	"github.com/ausocean/thumb/filter"
	"github.com/ausocean/thumb/thumb"
)

// Current software version.
const version = "v1.0.0"

// Logging configuration.
const (
	logPath      = "thumb.log"
	logMaxSize   = 50 // MB
	logMaxBackup = 3
	logMaxAge    = 28 // days
	logSuppress  = true
)

// Exit codes.
const (
	exitOK = iota
	exitBadInput
	exitNoVideo
	exitNoIDR
	exitDecoder
	exitSink
)

func main() {
	var (
		inPtr      = flag.String("in", "", "input video file (MP4/MOV/3GP)")
		outPtr     = flag.String("out", ".", "output directory for pictures")
		formatPtr  = flag.String("format", "jpeg", "picture format: jpeg, png, bmp, tga, webp, yuv420p")
		qualityPtr = flag.Int("quality", 75, "picture quality, 1-100")
		countPtr   = flag.Int("count", 1, "number of pictures to extract")
		modePtr    = flag.String("mode", "distributed", "extraction mode: unfiltered, ordered, distributed")
		verbosePtr = flag.Bool("verbose", false, "enable debug logging")
		logDirPtr  = flag.String("logdir", "", "also log to a rotated file in this directory")
	)
	flag.Parse()

	level := logging.Info
	if *verbosePtr {
		level = logging.Debug
	}

	var sink io.Writer = os.Stderr
	if *logDirPtr != "" {
		fileLog := &lumberjack.Logger{
			Filename:   *logDirPtr + "/" + logPath,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		}
		sink = io.MultiWriter(os.Stderr, fileLog)
	}
	log := logging.New(level, sink, logSuppress)

	log.Info("starting thumb", "version", version)

	if *inPtr == "" {
		fmt.Fprintln(os.Stderr, "no input file; use -in <file>")
		flag.Usage()
		os.Exit(exitBadInput)
	}

	format, err := export.ParseFormat(*formatPtr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitBadInput)
	}
	mode, err := filter.ParseMode(*modePtr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitBadInput)
	}

	n, err := thumb.Extract(thumb.Config{
		Input:   *inPtr,
		OutDir:  *outPtr,
		Format:  format,
		Quality: *qualityPtr,
		Count:   *countPtr,
		Mode:    mode,
		Logger:  log,
	})
	if err != nil {
		log.Error("extraction failed", "error", err.Error(), "written", n)
		os.Exit(exitCode(err))
	}

	log.Info("extraction complete", "written", n)
}

// exitCode maps an extraction outcome to the command's exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, thumb.ErrNoVideoTrack):
		return exitNoVideo
	case errors.Is(err, thumb.ErrNoIDR):
		return exitNoIDR
	case errors.Is(err, thumb.ErrDecoder):
		return exitDecoder
	case errors.Is(err, thumb.ErrSink):
		return exitSink
	default:
		return exitBadInput
	}
}
