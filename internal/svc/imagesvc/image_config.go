package imagesvc

// ImageConfig holds configuration parameters for upload image preparation.
type ImageConfig struct {
	// Interpolator specifies the image scaling algorithm to use.
	// Valid values are: "nearestneighbor", "catmullrom", "bilinear", "approxbilinear"
	Interpolator string `env:"INTERPOLATOR" default:"catmullrom"`
	// Width is the edge length of the square output image in pixels.
	Width int `env:"WIDTH" default:"1080"`
	// Quality is the JPEG encoder quality, 1 to 100.
	Quality int `env:"QUALITY" default:"50"`
	// MaxInputSize limits the size of the source image in bytes.
	MaxInputSize int64 `env:"MAX_INPUT_SIZE" default:"20971520"`
}
