// Package rospack locates ROS packages on disk the way `rospack find` does:
// it scans the roots of ROS_PACKAGE_PATH for package.xml manifests and
// matches on the manifest's <name>.
package rospack
