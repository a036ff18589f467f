package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/robertodauria/speedmatrix/internal/congestion"
	"github.com/robertodauria/speedmatrix/internal/handler"
	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
	"go.uber.org/zap"
)

var (
	flagEndpointCleartext = flag.String("listen", ":8080", "Listen address/port for cleartext connections")
	flagCC                = flag.String("cc", congestion.Default, "Congestion control algorithm to use")
	flagDebug             = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not read args from env")

	zc := zap.NewProductionConfig()
	if *flagDebug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zc.Build()
	rtx.Must(err, "Could not create logger")
	zap.ReplaceGlobals(logger)

	mux := http.NewServeMux()
	mux.HandleFunc(spec.DownloadPath, handler.New(*flagCC).Download)

	srv := &http.Server{
		Addr:              *flagEndpointCleartext,
		Handler:           mux,
		ConnContext:       handler.ConnContext,
		ReadHeaderTimeout: 10 * time.Second,
	}
	zap.L().Sugar().Infow("About to listen for download requests",
		"addr", *flagEndpointCleartext,
		"cc", *flagCC,
		"commit", prometheusx.GitShortCommit)
	rtx.Must(srv.ListenAndServe(), "Could not start the bulk-data server")
}
