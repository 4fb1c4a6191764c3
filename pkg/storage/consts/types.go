package consts

const (
	DefaultPhotosDir = "photos"
	DefaultVideosDir = "videos"
	DefaultQueueDir  = "queue"

	PhotoPrefix = "IMG_"
	VideoPrefix = "VID_"

	DefaultImageExt     = ".jpg"
	DefaultJobExt       = ".json"
	DefaultThumbnailExt = ".preview.jpg"

	// TimeLayout is dd-MM-yyyy_HH-mm-ss.
	TimeLayout = "02-01-2006_15-04-05"

	DefaultFilePerm = 0644
	DefaultDirPerm  = 0755
)
