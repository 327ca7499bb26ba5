package pose

// Joint name constants. The front-view set follows the common 17-point
// skeleton emitted by pose detectors, extended with a head-top point used
// for height calibration. The side-view set adds torso contour points the
// detector emits for depth estimation.
const (
	JointHeadTop       = "head_top"
	JointNose          = "nose"
	JointLeftEye       = "left_eye"
	JointRightEye      = "right_eye"
	JointLeftEar       = "left_ear"
	JointRightEar      = "right_ear"
	JointLeftShoulder  = "left_shoulder"
	JointRightShoulder = "right_shoulder"
	JointLeftElbow     = "left_elbow"
	JointRightElbow    = "right_elbow"
	JointLeftWrist     = "left_wrist"
	JointRightWrist    = "right_wrist"
	JointLeftHip       = "left_hip"
	JointRightHip      = "right_hip"
	JointLeftKnee      = "left_knee"
	JointRightKnee     = "right_knee"
	JointLeftAnkle     = "left_ankle"
	JointRightAnkle    = "right_ankle"

	// Side-view torso contour points used for circumference depth.
	JointChestFront = "chest_front"
	JointChestBack  = "chest_back"
	JointWaistFront = "waist_front"
	JointWaistBack  = "waist_back"
	JointHipFront   = "hip_front"
	JointHipBack    = "hip_back"
)

// Skeleton lists joint pairs connected by limbs, used by the overlay
// renderer to draw the detected pose.
var Skeleton = [][2]string{
	{JointHeadTop, JointNose},
	{JointNose, JointLeftEye},
	{JointNose, JointRightEye},
	{JointLeftEye, JointLeftEar},
	{JointRightEye, JointRightEar},
	{JointLeftShoulder, JointRightShoulder},
	{JointLeftShoulder, JointLeftElbow},
	{JointLeftElbow, JointLeftWrist},
	{JointRightShoulder, JointRightElbow},
	{JointRightElbow, JointRightWrist},
	{JointLeftShoulder, JointLeftHip},
	{JointRightShoulder, JointRightHip},
	{JointLeftHip, JointRightHip},
	{JointLeftHip, JointLeftKnee},
	{JointLeftKnee, JointLeftAnkle},
	{JointRightHip, JointRightKnee},
	{JointRightKnee, JointRightAnkle},
}
