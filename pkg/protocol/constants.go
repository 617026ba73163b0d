package protocol

// Type tags.
const (
	TypePosition2D byte = 0x01
	TypePosition3D byte = 0x03
	TypeUbyte      byte = 0x07
	TypeByte       byte = 0x08
	TypeInteger    byte = 0x09
	TypeDouble     byte = 0x0b
	TypeString     byte = 0x0c
	TypeStringList byte = 0x0e
	TypeCompound   byte = 0x0f
	TypeColor      byte = 0x11
)

// Status results.
const (
	StatusOK             byte = 0x00
	StatusNotImplemented byte = 0x01
	StatusErr            byte = 0xff
)

// Simulation control commands.
const (
	CmdGetVersion byte = 0x00
	CmdSimStep    byte = 0x02
	CmdSetOrder   byte = 0x03
	CmdClose      byte = 0x7f
)

// Value retrieval, state change and subscription commands per domain.
const (
	CmdGetInductionLoopVariable       byte = 0xa0
	CmdSubscribeInductionLoopVariable byte = 0xd0
	RespSubscribeInductionLoop        byte = 0xe0

	CmdGetTrafficLightVariable       byte = 0xa2
	CmdSubscribeTrafficLightVariable byte = 0xd2
	RespSubscribeTrafficLight        byte = 0xe2

	CmdGetVehicleVariable       byte = 0xa4
	RespGetVehicleVariable      byte = 0xb4
	CmdSetVehicleVariable       byte = 0xc4
	CmdSubscribeVehicleVariable byte = 0xd4
	RespSubscribeVehicle        byte = 0xe4

	CmdGetSimulationVariable       byte = 0xab
	CmdSubscribeSimulationVariable byte = 0xdb
	RespGetSimulationVariable      byte = 0xbb
	RespSubscribeSimulation        byte = 0xeb

	CmdGetLaneAreaVariable       byte = 0xad
	CmdSubscribeLaneAreaVariable byte = 0xdd
	RespSubscribeLaneArea        byte = 0xed

	CmdGetPersonVariable       byte = 0xae
	RespGetPersonVariable      byte = 0xbe
	CmdSetPersonVariable       byte = 0xce
	CmdSubscribePersonVariable byte = 0xde
	RespSubscribePerson        byte = 0xee
)

// Detector variables.
const (
	VarLastStepVehicleNumber byte = 0x10
	VarLastStepMeanSpeed     byte = 0x11
	VarLastStepVehicleIDList byte = 0x12
	VarLastStepHaltingNumber byte = 0x14
	VarLastStepMeanLength    byte = 0x15
	VarLastStepVehicleData   byte = 0x17
	VarLength                byte = 0x44
)

// Traffic light variables.
const (
	VarTLRedYellowGreenState byte = 0x20
	VarTLCurrentPhase        byte = 0x28
	VarTLCurrentProgram      byte = 0x29
	VarTLNextSwitch          byte = 0x2d
)

// Vehicle and person variables.
const (
	VarTaxiFleet        byte = 0x20
	VarTaxiDispatch     byte = 0x21
	VarSlope            byte = 0x36
	VarPosition3D       byte = 0x39
	VarSpeed            byte = 0x40
	VarAngle            byte = 0x43
	VarMinGap           byte = 0x4c
	VarRoadID           byte = 0x50
	VarLaneIndex        byte = 0x52
	VarRouteID          byte = 0x53
	VarLanePosition     byte = 0x56
	VarSignals          byte = 0x5b
	VarCO2Emission      byte = 0x60
	VarCOEmission       byte = 0x61
	VarHCEmission       byte = 0x62
	VarPMxEmission      byte = 0x63
	VarNOxEmission      byte = 0x64
	VarFuelConsumption  byte = 0x65
	VarLeader           byte = 0x68
	VarAcceleration     byte = 0x72
	VarParameter        byte = 0x7e
	VarDistance         byte = 0x84
	VarStopState        byte = 0xb5
	VarLanePositionLat  byte = 0xb8
	VarTaxiReservations byte = 0xc6
	VarTypeID           byte = 0x4f
)

// Simulation variables.
const (
	VarDepartedPersonIDs  byte = 0x2f
	VarArrivedPersonIDs   byte = 0x31
	VarTime               byte = 0x66
	VarDepartedVehicleIDs byte = 0x74
	VarArrivedVehicleIDs  byte = 0x7a
)

// InvalidDouble is what SUMO reports for values of entities not on the network.
const InvalidDouble = -1073741824.0

// TaxiStateParameter is the generic parameter key holding a taxi's fleet state.
const TaxiStateParameter = "device.taxi.state"
