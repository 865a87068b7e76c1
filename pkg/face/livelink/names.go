package livelink

// ChannelCount is the number of blendshape slots in a LiveLink Face packet:
// the 52 ARKit face shapes followed by head and eye rotations.
const ChannelCount = 61

// Channel names in packet order. Only the first face.MaxChannels are driven
// from raw frames by default; the remaining slots (tongue and rotations) keep
// whatever value the rig was given explicitly.
var channelNames = [ChannelCount]string{
	"EyeBlinkLeft",
	"EyeLookDownLeft",
	"EyeLookInLeft",
	"EyeLookOutLeft",
	"EyeLookUpLeft",
	"EyeSquintLeft",
	"EyeWideLeft",
	"EyeBlinkRight",
	"EyeLookDownRight",
	"EyeLookInRight",
	"EyeLookOutRight",
	"EyeLookUpRight",
	"EyeSquintRight",
	"EyeWideRight",
	"JawForward",
	"JawRight",
	"JawLeft",
	"JawOpen",
	"MouthClose",
	"MouthFunnel",
	"MouthPucker",
	"MouthRight",
	"MouthLeft",
	"MouthSmileLeft",
	"MouthSmileRight",
	"MouthFrownLeft",
	"MouthFrownRight",
	"MouthDimpleLeft",
	"MouthDimpleRight",
	"MouthStretchLeft",
	"MouthStretchRight",
	"MouthRollLower",
	"MouthRollUpper",
	"MouthShrugLower",
	"MouthShrugUpper",
	"MouthPressLeft",
	"MouthPressRight",
	"MouthLowerDownLeft",
	"MouthLowerDownRight",
	"MouthUpperUpLeft",
	"MouthUpperUpRight",
	"BrowDownLeft",
	"BrowDownRight",
	"BrowInnerUp",
	"BrowOuterUpLeft",
	"BrowOuterUpRight",
	"CheekPuff",
	"CheekSquintLeft",
	"CheekSquintRight",
	"NoseSneerLeft",
	"NoseSneerRight",
	"TongueOut",
	"HeadYaw",
	"HeadPitch",
	"HeadRoll",
	"LeftEyeYaw",
	"LeftEyePitch",
	"LeftEyeRoll",
	"RightEyeYaw",
	"RightEyePitch",
	"RightEyeRoll",
}

// Well-known channel indices used by the idle animation and tests.
const (
	EyeBlinkLeft  = 0
	EyeBlinkRight = 7
	JawOpen       = 17
	BrowInnerUp   = 43
	TongueOut     = 51
	HeadYaw       = 52
	HeadPitch     = 53
	HeadRoll      = 54
)

// ChannelName returns the name of the channel at index, or "" when index is
// out of range.
func ChannelName(index int) string {
	if index < 0 || index >= ChannelCount {
		return ""
	}
	return channelNames[index]
}

// ChannelIndex returns the index of the named channel and whether it exists.
// Matching is exact.
func ChannelIndex(name string) (int, bool) {
	for i, n := range channelNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}
