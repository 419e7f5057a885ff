package models

// SceneKey identifies one of the four ad scenes.
type SceneKey string

const (
	Scene1 SceneKey = "scene1"
	Scene2 SceneKey = "scene2"
	Scene3 SceneKey = "scene3"
	Scene4 SceneKey = "scene4"
)

// SceneKeys lists the scenes in render order. Merge and prompt responses must
// preserve this order.
var SceneKeys = []SceneKey{Scene1, Scene2, Scene3, Scene4}

// IsValidSceneKey reports whether key names one of the four scenes.
func IsValidSceneKey(key string) bool {
	for _, k := range SceneKeys {
		if string(k) == key {
			return true
		}
	}
	return false
}

// ScenePrompts maps each scene to its generated video prompt.
type ScenePrompts map[SceneKey]string
