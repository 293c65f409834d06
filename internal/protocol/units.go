package protocol

// parameterUnits maps derived-channel labels to their measurement units,
// used to fill in channel metadata when streams are declared.
var parameterUnits = map[string]string{
	"activity":                       "g",
	"activity_unreliable":            "binary",
	"avg_rate_of_force_development":  "N/s",
	"avg_step_impulse":               "Ns",
	"avg_step_period":                "seconds",
	"battery_percent":                "percent",
	"battery_voltage":                "Volts",
	"bound_count":                    "count",
	"br_amplitude_high":              "binary",
	"br_amplitude_low":               "binary",
	"br_amplitude_variance_high":     "binary",
	"breathing_rate_confidence":      "percent",
	"breathing_wave_amplitude":       "unnormalized",
	"breathing_wave_noise":           "unnormalized",
	"button_pressed":                 "binary",
	"device_internal_temp":           "degrees C",
	"device_worn_confidence":         "normalized",
	"ecg_amplitude":                  "Volts",
	"ecg_noise":                      "Volts",
	"estimated_core_temp_unreliable": "binary",
	"estimated_core_temperature":     "degrees C",
	"external_sensors_connected":     "binary",
	"gsr":                            "nanosiemens",
	"heart_rate":                     "BPM",
	"heart_rate_confidence":          "percent",
	"heart_rate_is_low_quality":      "binary",
	"heart_rate_unreliable":          "binary",
	"heart_rate_variability":         "ms",
	"hrv_unreliable":                 "binary",
	"impact_count3g":                 "count",
	"impact_count7g":                 "count",
	"impulse_load":                   "Ns",
	"jump_count":                     "count",
	"last_jump_flight_time":          "seconds",
	"lat_degrees":                    "degrees",
	"lat_minutes":                    "minutes",
	"lateral_accel_min":              "g",
	"lateral_accel_peak":             "g",
	"link_quality":                   "percent",
	"long_degrees":                   "degrees",
	"long_minutes":                   "minutes",
	"not_fitted_to_garment":          "binary",
	"peak_accel_phi":                 "degrees",
	"peak_accel_theta":               "degrees",
	"peak_acceleration":              "g",
	"physio_monitor_worn":            "binary",
	"posture":                        "degrees",
	"posture_unreliable":             "binary",
	"qual_indication":                "binary",
	"resp_rate_high":                 "binary",
	"resp_rate_low":                  "binary",
	"respiration_rate":               "BPM",
	"respiration_rate_unreliable":    "binary",
	"resting_state_detected":         "binary",
	"rssi":                           "dB",
	"run_step_count":                 "count",
	"sagittal_accel_min":             "g",
	"sagittal_accel_peak":            "g",
	"skin_temperature":               "degrees C",
	"skin_temperature_unreliable":    "binary",
	"system_confidence":              "percent",
	"tx_power":                       "dBm",
	"ui_button_pressed":              "binary",
	"usb_power_connected":            "binary",
	"vertical_accel_min":             "g",
	"vertical_accel_peak":            "g",
	"walk_step_count":                "count",
}

// UnitFor returns the unit for a named parameter, or the empty string when
// none is documented.
func UnitFor(param string) string {
	return parameterUnits[param]
}
