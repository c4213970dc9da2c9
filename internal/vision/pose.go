package vision

import (
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// HeadPoseEstimator regresses head pose angles from a face crop using a
// lightweight ONNX model. Safe for concurrent use.
type HeadPoseEstimator struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// NewHeadPoseEstimator loads the head-pose ONNX model.
func NewHeadPoseEstimator(modelPath string) (*HeadPoseEstimator, error) {
	inputW, inputH := 224, 224

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Output: [1, 3] — pitch, yaw, roll in degrees
	outputShape := ort.NewShape(1, 3)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"angles"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create head pose session: %w", err)
	}

	return &HeadPoseEstimator{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// Estimate runs head-pose regression on a face crop.
func (p *HeadPoseEstimator) Estimate(crop image.Image) (pitch, yaw, roll float64, err error) {
	faceData := imageToFloat32CHW(crop, p.inputW, p.inputH,
		[3]float32{123.675, 116.28, 103.53}, [3]float32{58.395, 57.12, 57.375})

	p.mu.Lock()
	defer p.mu.Unlock()

	copy(p.inputTensor.GetData(), faceData)

	if err := p.session.Run(); err != nil {
		return 0, 0, 0, fmt.Errorf("run head pose: %w", err)
	}

	data := p.outputTensor.GetData()
	if len(data) < 3 {
		return 0, 0, 0, fmt.Errorf("unexpected output size: %d", len(data))
	}

	return float64(data[0]), float64(data[1]), float64(data[2]), nil
}

// InputSize returns the expected face crop dimensions.
func (p *HeadPoseEstimator) InputSize() (int, int) {
	return p.inputW, p.inputH
}

func (p *HeadPoseEstimator) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
}
