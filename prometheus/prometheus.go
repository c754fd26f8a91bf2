package prometheus

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Serve exposes /metrics on the given port in a background goroutine so
// operators can watch long scans in flight
func Serve(port int) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	go func() {
		addr := fmt.Sprintf(":%d", port)
		log.Infof("serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, r); err != nil {
			log.Errorf("metrics server stopped: %v", err)
		}
	}()
}
