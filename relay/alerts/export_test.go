package alerts

import "github.com/omni/bridge-relayer/logging"

func SetJobLogger(j *Job, logger logging.Logger) {
	j.logger = logger
}
