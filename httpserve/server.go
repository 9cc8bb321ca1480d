// Copyright (c) 2013 Uwe Hoffmann. All rights reserved.

/*
Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are
met:

   * Redistributions of source code must retain the above copyright
notice, this list of conditions and the following disclaimer.
   * Redistributions in binary form must reproduce the above
copyright notice, this list of conditions and the following disclaimer
in the documentation and/or other materials provided with the
distribution.
   * Neither the name of Google Inc. nor the names of its
contributors may be used to endorse or promote products derived from
this software without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
"AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
OWNER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
(INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.
*/

// Package httpserve hosts a single archive file for download over plain
// HTTP: a liveness route, an attachment download route, and a 404
// fallback. It has no notion of how the archive was built; it only
// consumes a finished file path and a declared media type.
package httpserve

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/golang/glog"
)

// Options configures one archive-hosting server.
type Options struct {
	Host          string
	Port          int
	HostPath      string // route the archive is served on, without a leading slash
	ArchivePath   string // filesystem path to the finished archive
	MediaType     string // Content-Type advertised for the download
	ServerThreads int    // max concurrent in-flight downloads, 0 = unbounded
}

// Addr returns the host:port string ListenAndServe expects.
func (o Options) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// NewMux builds the three-route handler: GET /ping, GET /{HostPath}, and a
// 404 fallback for everything else, matching the route shape of
// original_source/src/server.rs's handle().
func NewMux(opts Options) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", loggingMiddleware(pingHandler))
	mux.HandleFunc("/"+opts.HostPath, loggingMiddleware(throttle(opts.ServerThreads, archiveHandler(opts))))
	mux.HandleFunc("/", loggingMiddleware(notFoundHandler))
	return mux
}

// throttle caps the number of concurrent in-flight downloads at n via a
// buffered-channel semaphore, giving --server-threads an actual effect on a
// net/http server that otherwise spawns one goroutine per request. n <= 0
// means unbounded.
func throttle(n int, next http.HandlerFunc) http.HandlerFunc {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return func(w http.ResponseWriter, r *http.Request) {
		sem <- struct{}{}
		defer func() { <-sem }()
		next(w, r)
	}
}

// ListenAndServe starts the server and blocks, matching the
// log.Fatal(http.ListenAndServe(...)) convention cmds/rombaserver/main.go
// uses for its own server.
func ListenAndServe(opts Options) error {
	glog.Infof("hosting %s at %s/%s", opts.ArchivePath, opts.Addr(), opts.HostPath)
	return http.ListenAndServe(opts.Addr(), NewMux(opts))
}

func pingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Pong!")
}

func archiveHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", opts.MediaType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(opts.ArchivePath)))
		http.ServeFile(w, r, opts.ArchivePath)
	}
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not Found", http.StatusNotFound)
}

// loggingMiddleware logs one line per request (method, path, status,
// duration), matching original_source/src/server.rs logging each
// connection's outcome and romba's access-log conventions elsewhere.
func loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		glog.Infof("%s %s %d %s", r.Method, r.URL.Path, sw.status, time.Since(start))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}
