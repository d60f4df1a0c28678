package shadercache

import (
	"strings"

	"github.com/gogpu/shadercache/config"
)

// Profile is the assembly strategy and the driver workarounds chosen once
// at startup.
type Profile struct {
	// Separable selects independently bindable stages assembled through a
	// pipeline object. Otherwise the three stages are linked into one
	// program per combination.
	Separable bool

	// ResetStagesOnRebind clears all pipeline slots before rebinding them.
	// Some AMD drivers hang when one slot changes while the others keep
	// their program; on Intel drivers the reset leaks memory.
	ResetStagesOnRebind bool
}

var amdVendors = []string{"ATI TECHNOLOGIES", "ADVANCED MICRO DEVICES", "AMD"}

// IsAMD reports whether vendor names an AMD/ATI driver.
func IsAMD(vendor string) bool {
	v := strings.ToUpper(vendor)
	for _, name := range amdVendors {
		if strings.Contains(v, name) {
			return true
		}
	}
	return false
}

// DetectProfile selects the assembly strategy for a driver.
func DetectProfile(info DriverInfo, s config.Settings) Profile {
	return Profile{
		Separable:           info.SeparableShaderObjects && s.SeparableShader,
		ResetStagesOnRebind: IsAMD(info.Vendor),
	}
}

// rebindStages points the three slots of pipeline at the given programs.
func rebindStages(d Driver, pipeline Handle, reset bool, vs, gs, fs Handle) {
	if reset {
		d.UseProgramStages(pipeline, AllStageBits, 0)
	}
	d.UseProgramStages(pipeline, VertexBit, vs)
	d.UseProgramStages(pipeline, GeometryBit, gs)
	d.UseProgramStages(pipeline, FragmentBit, fs)
}
