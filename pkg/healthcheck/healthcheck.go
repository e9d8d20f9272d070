package healthcheck

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const timeout = 5 * time.Second

// Healthcheck performs check to see if server is up and running/responding.
// It returns the process exit code: 0 healthy, 1 unhealthy.
func Healthcheck(port string) int {
	return Check("http://127.0.0.1:" + port + "/")
}

// Check requests url and expects a 200.
func Check(url string) int {
	client := &http.Client{Timeout: timeout, Transport: http.DefaultClient.Transport}
	resp, err := client.Get(url)
	if err != nil {
		log.WithFields(log.Fields{
			"Method": "Healthcheck",
			"URL":    url,
		}).WithError(err).Debug("service unreachable")
		return 1
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithFields(log.Fields{
				"Method": "Healthcheck",
			}).Warning("Failed to close response.")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
