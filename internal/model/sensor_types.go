package model

// Sensor type keys. The set is closed: readings with any other type are
// rejected before they reach storage.
const (
	Temperature  = "temperature"
	Humidity     = "humidity"
	WaterLevel   = "water_level"
	PH           = "ph"
	Salinity     = "salinity"
	Rain         = "rain"
	SoilMoisture = "soil_moisture"
)

// sensorTypes is the expansion order of a Snapshot.
var sensorTypes = [...]string{
	Temperature,
	Humidity,
	WaterLevel,
	PH,
	Salinity,
	Rain,
	SoilMoisture,
}

type sensorInfo struct {
	displayName string
	unit        string
	min, max    float64
}

var sensorInfos = map[string]sensorInfo{
	Temperature:  {displayName: "Temperature", unit: "°C", min: 10, max: 40},
	Humidity:     {displayName: "Humidity", unit: "%", min: 20, max: 80},
	WaterLevel:   {displayName: "Water Level", unit: "cm", min: 5, max: 90},
	PH:           {displayName: "pH", unit: "pH", min: 5, max: 9},
	Salinity:     {displayName: "Salinity", unit: "ppt", min: 0, max: 30},
	Rain:         {displayName: "Rain", unit: "", min: 0, max: 1},
	SoilMoisture: {displayName: "Soil Moisture", unit: "%", min: 20, max: 80},
}

// SensorTypes returns the known sensor types in expansion order.
func SensorTypes() []string {
	out := make([]string, len(sensorTypes))
	copy(out, sensorTypes[:])
	return out
}

// IsKnownSensorType reports whether sensorType belongs to the closed set.
func IsKnownSensorType(sensorType string) bool {
	_, ok := sensorInfos[sensorType]
	return ok
}

// DisplayName returns a human readable label for the sensor type.
func DisplayName(sensorType string) string {
	if info, ok := sensorInfos[sensorType]; ok {
		return info.displayName
	}
	return "Unknown Sensor"
}

// Unit returns the measurement unit shown next to values of the sensor type.
func Unit(sensorType string) string {
	return sensorInfos[sensorType].unit
}

// DefaultThreshold returns the built-in threshold for a sensor type. Unknown
// types get the permissive 0..100 range.
func DefaultThreshold(sensorType string) Threshold {
	info, ok := sensorInfos[sensorType]
	if !ok {
		return Threshold{SensorType: sensorType, MinValue: 0, MaxValue: 100}
	}
	return Threshold{SensorType: sensorType, MinValue: info.min, MaxValue: info.max}
}
