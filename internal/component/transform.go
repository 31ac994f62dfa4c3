package component

// Vec3 is a position or scale in world units.
type Vec3 struct {
	X, Y, Z float64
}

// Quat is a rotation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat is the zero rotation.
var IdentityQuat = Quat{W: 1}

// Transform is the placement of an entity in its scope.
type Transform struct {
	Position Vec3
	Rotation Quat
	Scale    Vec3
}

// NewTransform returns a transform at the origin with unit scale.
func NewTransform() *Transform {
	return &Transform{Rotation: IdentityQuat, Scale: Vec3{1, 1, 1}}
}
