package main

import (
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
	"go.viam.com/rdk/services/generic"
	mmecfab "mmec_fab"
)

func main() {
	// The pick-place service drives the arm; the discovery service proposes its config.
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: mmecfab.PickPlaceModel},
		resource.APIModel{API: discovery.API, Model: mmecfab.DiscoveryModel},
	)
}
