package localidp

import (
	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/robfig/cron/v3"
)

// StartExpirySweep runs ExpireIfDue on the given cron schedule
// (e.g. "@every 30s"). The returned stop waits for a running sweep.
func (p *Provider) StartExpirySweep(schedule string) (stop func(), err error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() { p.ExpireIfDue() }); err != nil {
		return nil, errors.Wrapf(err, "[StartExpirySweep] invalid schedule %q", schedule)
	}
	c.Start()

	return func() {
		<-c.Stop().Done()
	}, nil
}
