package injector

import (
	"github.com/useframi1/CloudP2P/internal/core/cluster"
	"github.com/useframi1/CloudP2P/internal/core/metrics"
	"github.com/useframi1/CloudP2P/internal/core/stego"
)

func provideSensor() *metrics.Sensor {
	return metrics.NewSensor(metrics.NewHostProbe())
}

func provideTransform() cluster.TransformFunc {
	return stego.Embed
}
