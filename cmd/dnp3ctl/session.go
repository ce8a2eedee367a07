package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/dnp3go/master/app"
	"github.com/dnp3go/master/link"
	"github.com/dnp3go/master/master"
)

// openChannel builds and starts a Channel plus its single Association
// from the bound --host/--master-address/--outstation-address flags,
// returning a stop function the caller defers. Every subcommand is a
// one-shot program, so the channel is started, the task is submitted,
// and the channel is torn down before the process exits.
func openChannel() (*master.Channel, *master.Association, context.CancelFunc, error) {
	masterAddr, err := link.NewEndpointAddress(viper.GetUint16("master-address"))
	if err != nil {
		return nil, nil, nil, err
	}
	outstationAddr, err := link.NewEndpointAddress(viper.GetUint16("outstation-address"))
	if err != nil {
		return nil, nil, nil, err
	}

	cfg := master.MasterChannelConfig{MasterAddress: masterAddr}
	strategy := master.ConnectStrategy{}
	log := logrus.StandardLogger()

	ch := master.NewTCPChannel("dnp3ctl", viper.GetString("host"), cfg, strategy, log, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch.Start(ctx)

	assocCfg := master.AssociationConfig{IntegrityAtStartup: false}
	assoc := ch.AddAssociation(outstationAddr, assocCfg, nil, nil)

	return ch, assoc, cancel, nil
}

// runTask enables assoc if needed, submits t, and waits up to timeout
// for it to complete, returning the decoded response on success.
func runTask(ch *master.Channel, assoc *master.Association, t *master.Task, timeout time.Duration) (app.Response, error) {
	if err := ch.Enable(assoc.Address); err != nil {
		return app.Response{}, err
	}
	if err := ch.Submit(assoc.Address, t); err != nil {
		return app.Response{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.Wait(ctx)
}
